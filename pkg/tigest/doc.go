// Package tigest provides a Go SDK for running real-time voice calls
// against a conversational AI backend.
//
// # Overview
//
// The Tigest Voice SDK provides a complete solution for:
//   - Microphone capture with RMS voice activity gating
//   - Duplex streaming over a persistent live websocket
//   - Gapless scheduled playback of agent audio with barge-in flush
//   - Ordered transcript assembly of user and agent turns
//   - Tool-call dispatch for lead capture, calendar availability, and
//     agent-initiated hangup
//   - Idle and max-duration call supervision
//   - Structured logging with Zerolog
//
// # Quick Start
//
// Basic usage example:
//
//	config := tigest.NewConfig()
//	session, err := tigest.NewSession(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session.OnTranscript(func(turns []tigest.Turn) {
//		for _, turn := range turns {
//			fmt.Printf("[%s] %s\n", turn.Role, turn.Text)
//		}
//	})
//
//	ctx := context.Background()
//	if err := session.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	session.Wait(ctx)
//
// # Configuration
//
// Configuration is environment-driven, with a .env file loaded when
// present:
//
//	config := tigest.NewConfig()
//	config.Voice = "Kore"
//	config.MaxCallDuration = 5 * time.Minute
//	if issues := config.Validate(); len(issues) > 0 {
//		log.Fatal(issues)
//	}
//
// # Session Lifecycle
//
// A session moves Idle -> Connecting -> Active -> Terminating -> Idle.
// Failures during Connecting or Active land in Error and reset to Idle
// automatically after a short grace period.
package tigest
