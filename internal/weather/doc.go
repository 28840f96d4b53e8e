// Package weather turns delimited text rows of a daily climate summary into
// typed observations and labels them with anomaly tags.
//
// The package is pure: nothing here touches the network, the store or a
// logger. A row either becomes a types.Observation or fails with a
// *ParseError naming the offending column.
package weather
