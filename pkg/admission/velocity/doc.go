// Package velocity tracks spend rate against a rolling baseline to detect
// spending anomalies such as runaway loops or cost-exploitation attacks.
package velocity
