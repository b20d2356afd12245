package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/config"
	"github.com/xrmirror/layer/internal/logging"
)

var (
	version     = "0.1.0"
	cfgFile     string
	channelName string
)

var rootCmd = &cobra.Command{
	Use:   "xrmirror",
	Short: "XRMirror diagnostics",
	Long:  `XRMirror - diagnostics and consumer-side tooling for the OpenXR frame mirror channel`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Inspect the shared surface channel",
	Run: func(cmd *cobra.Command, args []string) {
		showStatus()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Consume frames and report rate and drift",
	Run: func(cmd *cobra.Command, args []string) {
		watchChannel()
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Produce frames without a VR runtime, for consumer bring-up",
	Run: func(cmd *cobra.Command, args []string) {
		simulateProducer()
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the available blend presets",
	Run: func(cmd *cobra.Command, args []string) {
		listPresets()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xrmirror v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is xrmirror.yaml in the config dir)")
	rootCmd.PersistentFlags().StringVar(&channelName, "channel", "", "shared surface channel name")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Validate()
	if channelName != "" {
		cfg.ChannelName = channelName
	}
	var out io.Writer
	if cfg.LogFile != "" {
		w, err := logging.NewRotatingWriter(cfg.LogFile, 10, 2)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file unavailable: %v\n", err)
		} else {
			out = w
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
	return cfg
}

// consumerProcessNames are capture tools known to open the channel.
var consumerProcessNames = []string{"obs", "obs32", "obs64", "obs-studio"}

func showStatus() {
	cfg := loadConfig()

	consumer, err := channel.Open(cfg.ChannelName)
	if err != nil {
		fmt.Printf("Channel %q: not available (%v)\n", cfg.ChannelName, err)
		fmt.Println("No producer is running, or this platform has no shared surface support.")
		return
	}
	defer consumer.Close()

	block := consumer.Block()
	fmt.Printf("Channel: %s\n", cfg.ChannelName)
	fmt.Printf("Frame number: %d\n", block.FrameNumber())
	fmt.Printf("Last processed: %d\n", block.LastProcessed())
	fmt.Printf("Eye index: %d\n", block.EyeIndex())
	fmt.Printf("Overlap/blend/pos: %.1f%% / %.1f%% / %.1f%%\n",
		block.Overlap(), block.Blend(), block.BlendPos())
	for slot := 0; slot < channel.HandleSlots; slot++ {
		h := block.Handle(slot)
		if h == 0 {
			fmt.Printf("Handle[%d]: unpublished\n", slot)
		} else {
			fmt.Printf("Handle[%d]: 0x%X\n", slot, h)
		}
	}

	if name, ok := findConsumerProcess(); ok {
		fmt.Printf("Consumer process: %s (running)\n", name)
	} else {
		fmt.Println("Consumer process: not found")
	}
}

func findConsumerProcess() (string, bool) {
	procs, err := process.Processes()
	if err != nil {
		return "", false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(name, ".exe"))
		for _, known := range consumerProcessNames {
			if base == known {
				return name, true
			}
		}
	}
	return "", false
}

// watchChannel acts as a minimal consumer: it marks every observed frame
// processed and reports rate plus counter drift. Skipped frames mean the
// producer outran the poll; duplicates mean the producer stalled.
func watchChannel() {
	cfg := loadConfig()

	consumer, err := channel.Open(cfg.ChannelName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open channel %q: %v\n", cfg.ChannelName, err)
		os.Exit(1)
	}
	defer consumer.Close()

	fmt.Printf("Watching channel %q (Ctrl-C to stop)\n", cfg.ChannelName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	var frames, skipped, duplicates uint64
	cursor := consumer.FrameNumber()
	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopped.")
			return
		case <-report.C:
			fmt.Printf("%.0f fps, skipped %d, duplicate polls %d, frame %d\n",
				float64(frames), skipped, duplicates, cursor)
			frames = 0
		case <-ticker.C:
			now := consumer.FrameNumber()
			switch {
			case now == cursor:
				duplicates++
				continue
			case now > cursor+1:
				skipped += uint64(now - cursor - 1)
			}
			cursor = now
			frames++
			consumer.Block().SetLastProcessed(now)
		}
	}
}

// simulateProducer drives the channel the way the layer would, without any
// GPU work. Useful for consumer-side bring-up: the consumer sees a live
// frame counter and zero handles.
func simulateProducer() {
	cfg := loadConfig()

	producer, err := channel.Create(cfg.ChannelName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create channel %q: %v\n", cfg.ChannelName, err)
		os.Exit(1)
	}
	defer producer.Close()

	block := producer.Block()
	block.SetEyeIndex(cfg.EyeIndex)
	block.SetBlendParams(cfg.Overlap, cfg.Blend, cfg.BlendPos)
	if cfg.LivenessThresholdFrames > 0 {
		producer.SetLivenessThreshold(cfg.LivenessThresholdFrames)
	}

	fmt.Printf("Producing on channel %q at 90 Hz (Ctrl-C to stop)\n", cfg.ChannelName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / 90)
	defer ticker.Stop()

	wasActive := true
	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopped.")
			return
		case <-ticker.C:
			active := producer.Advance()
			if active != wasActive {
				if active {
					fmt.Println("consumer active")
				} else {
					fmt.Println("consumer inactive")
				}
				wasActive = active
			}
		}
	}
}

func listPresets() {
	cfg := loadConfig()
	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, name := range config.PresetNames(presets) {
		p := presets[name]
		fmt.Printf("%-10s overlap %5.1f%%  blend %5.1f%%  pos %5.1f%%\n",
			name, p.Overlap, p.Blend, p.BlendPos)
	}
}
