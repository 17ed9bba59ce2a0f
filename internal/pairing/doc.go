// Package pairing implements the partition algorithm that splits checked-in
// participants into pairs, with a single triple absorbing an odd remainder.
//
// The algorithm has a fixed structure and random content: for n participants
// it always produces n/2 duos when n is even, and (n-3)/2 duos plus exactly
// one triple when n is odd, but which users land together is decided by an
// unbiased shuffle. Callers inject the random source; tests pass a seeded one.
//
// Display tags use a 10-color palette and numbers in 1-100 (the range the
// scheduled rotation job uses everywhere; the client renders the same range).
package pairing
