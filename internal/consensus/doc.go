// Package consensus reduces several stochastic model outputs to one.
//
// Candidates are produced by Sample, which calls the same generation function
// a fixed number of times and keeps every non-empty result. Reducer then runs
// a linear left fold: the running winner is compared against each remaining
// candidate by a Judge, so N candidates cost N-1 judge calls.
//
// Votes are read from free text by ParseVote. When the vote is ambiguous or
// the judge fails, the running winner is kept.
package consensus
