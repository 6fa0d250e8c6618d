// Package retention prunes aged spending records from the ledger and
// its persistence sink, on demand or on a cron schedule.
package retention
