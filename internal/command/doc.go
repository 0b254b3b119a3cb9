// Package command implements the command log and the dispatcher that moves
// commands from controllers to devices.
//
// A command is written durably before any live push is attempted. If the
// target device has a live session at that moment the row is stored as
// delivered and pushed; otherwise it is stored as queued and replayed, in
// creation order, the next time the device registers.
//
// # Lifecycle
//
//	pending|queued ──▶ delivered ──▶ executing ──▶ completed
//	                        │                  └──▶ failed
//	                        └──────────────────────▶ completed|failed
//
// Status updates are conditional SQL updates that only move forward, so
// duplicate acknowledgments from at-least-once delivery are harmless.
//
// # Usage
//
//	dispatcher := command.NewDispatcher(command.NewSQLiteRepository(db.DB), registry)
//	dispatcher.SetPusher(realtimeServer)
//	res, err := dispatcher.Dispatch(ctx, "", deviceID, command.ActionCapturePhoto, nil)
package command
