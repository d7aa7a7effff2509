package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tigest/voice-sdk-go/pkg/tigest"
)

var (
	verbose  bool
	apiKey   string
	model    string
	voice    string
	deviceID int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tigest",
		Short: "Tigest Voice SDK CLI",
		Long:  "A command-line interface for running live voice calls with the Tigest agent",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Static API key (overrides environment)")

	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		tigest.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func callCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Start a live voice call",
		Long:  "Open the microphone, connect to the live backend, and run a full call until the agent hangs up or Ctrl+C",
		Run: func(cmd *cobra.Command, args []string) {
			config := tigest.NewConfig()
			if apiKey != "" {
				config.APIKey = apiKey
			}
			if model != "" {
				config.Model = model
			}
			if voice != "" {
				config.Voice = voice
			}
			if cmd.Flags().Changed("device") {
				config.AudioDeviceID = &deviceID
			}
			config.DebugWebsocket = verbose
			config.DebugAudio = verbose

			if verbose {
				config.PrintConfig()
			}

			session, agentErr := tigest.NewSession(config)
			if agentErr != nil {
				tigest.GetGlobalLogger().LogError(agentErr)
				os.Exit(1)
			}

			session.OnStateChange(func(from, to tigest.SessionState) {
				fmt.Printf("-- %s\n", to)
			})
			session.OnLiveTranscript(func(live tigest.LiveTranscript) {
				if verbose {
					if live.User != "" {
						fmt.Printf("\r[you] %s", live.User)
					}
					if live.Agent != "" {
						fmt.Printf("\r[sara] %s", live.Agent)
					}
				}
			})
			session.OnTranscript(func(turns []tigest.Turn) {
				last := turns[len(turns)-1]
				fmt.Printf("\n[%s] %s\n", last.Role, last.Text)
			})
			session.OnTimeLeft(func(remaining time.Duration) {
				if remaining <= 30*time.Second && int(remaining.Seconds())%10 == 0 {
					fmt.Printf("-- %ds left\n", int(remaining.Seconds()))
				}
			})
			session.OnError(func(agentErr *tigest.AgentError) {
				fmt.Printf("!! %s (%s)\n", agentErr.Message, agentErr.Code)
			})

			ctx := context.Background()
			if agentErr := session.Start(ctx); agentErr != nil {
				tigest.GetGlobalLogger().LogError(agentErr)
				os.Exit(1)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nHanging up...")
				session.Stop("user_hangup")
			}()

			if err := session.Wait(ctx); err != nil {
				tigest.GetGlobalLogger().WithError(err).Error("Call wait interrupted")
			}

			lead := session.Lead()
			if lead.Name != "" || lead.Email != "" {
				fmt.Printf("Lead captured: %s <%s>\n", lead.Name, lead.Email)
			}
			fmt.Println("Call finished.")
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Live model to use")
	cmd.Flags().StringVar(&voice, "voice", "", "Agent voice name")
	cmd.Flags().IntVar(&deviceID, "device", -1, "Capture device ID (see 'tigest devices')")
	return cmd
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "Enumerate host audio devices and show which can serve capture",
		Run: func(cmd *cobra.Command, args []string) {
			manager := tigest.NewDeviceManager()
			if agentErr := manager.Initialize(); agentErr != nil {
				tigest.GetGlobalLogger().LogError(agentErr)
				os.Exit(1)
			}
			defer manager.Cleanup()

			for _, device := range manager.Devices() {
				marks := []string{}
				if device.MaxInputChannels > 0 {
					marks = append(marks, "in")
				}
				if device.MaxOutputChannels > 0 {
					marks = append(marks, "out")
				}
				if device.IsDefaultInput {
					marks = append(marks, "default-in")
				}
				if device.IsDefaultOutput {
					marks = append(marks, "default-out")
				}
				fmt.Printf("%3d  %-40s %6.0f Hz  %s  [%s]\n",
					device.ID, device.Name, device.DefaultSampleRate,
					device.HostAPI, strings.Join(marks, ","))
			}
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		Long:  "Load configuration from the environment and report anything missing or invalid",
		Run: func(cmd *cobra.Command, args []string) {
			config := tigest.NewConfig()
			if apiKey != "" {
				config.APIKey = apiKey
			}
			config.PrintConfig()

			issues := config.Validate()
			if len(issues) == 0 {
				fmt.Println("Configuration OK")
				return
			}
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
			os.Exit(1)
		},
	}
}
