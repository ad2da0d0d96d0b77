// Package tools runs host commands on behalf of the link daemon.
//
// Quick-button actions are the only caller: each configured action name maps
// to one argv that runs in the background with a bounded timeout.
package tools
