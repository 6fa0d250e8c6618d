// Package ratelimit provides the sliding-window admission primitive used
// by the budget guard.
//
// A WindowLimiter bounds the total weight admitted within any trailing
// time window. The same primitive serves request-count limiting (weight 1
// per request) and token-volume limiting (weight = token count).
package ratelimit
