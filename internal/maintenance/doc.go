// Package maintenance runs periodic housekeeping for the relay on a cron
// schedule.
//
// Jobs are registered once at construction and run on their own goroutines
// inside the scheduler. A job never takes the relay down: panics are
// recovered and logged, and each run is bounded by a timeout.
//
// Jobs:
//
//   - pairing cleanup: deletes pairing codes that expired without being
//     used (schedule from pairing.cleanup_schedule, default "@every 5m")
//
// # Usage
//
//	sched, err := maintenance.New(maintenance.Deps{
//	    Pairings:        pairingRepo,
//	    CleanupSchedule: cfg.Pairing.CleanupSchedule,
//	})
//	sched.SetLogger(log)
//	sched.Start()
//	defer sched.Stop(ctx)
package maintenance
