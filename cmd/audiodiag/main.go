package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/civicvoice/bylaw-tts/internal/audio"
)

func main() {
	tone := flag.Bool("tone", false, "Play a 440 Hz test tone through the output path")
	toneSeconds := flag.Int("duration", 2, "Tone duration in seconds")
	framesPerBuffer := flag.Int("frames", 1024, "Frames per buffer for the tone test")
	flag.Parse()

	fmt.Println("=== Audio Output Diagnostics ===")
	fmt.Println()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize PortAudio: %v\n", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	hostAPIs, err := portaudio.HostApis()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get host APIs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d Host API(s):\n", len(hostAPIs))
	for i, api := range hostAPIs {
		fmt.Printf("  [%d] %s (%d devices)\n", i, api.Name, len(api.Devices))
		for _, dev := range api.Devices {
			if dev.MaxOutputChannels == 0 {
				continue
			}
			fmt.Printf("      out: %-40s %6.0f Hz, %d ch\n",
				dev.Name, dev.DefaultSampleRate, dev.MaxOutputChannels)
		}
	}

	def, err := portaudio.DefaultOutputDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "No default output device: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDefault output: %s (%.0f Hz)\n", def.Name, def.DefaultSampleRate)

	if *tone {
		if err := playTone(*framesPerBuffer, *toneSeconds); err != nil {
			fmt.Fprintf(os.Stderr, "Tone test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Tone test OK")
	}
}

// playTone drives a sine wave through the same Output fill path the player
// uses, verifying the device without touching the network.
func playTone(framesPerBuffer, seconds int) error {
	out, err := audio.NewPortAudioOutput(framesPerBuffer)
	if err != nil {
		return err
	}
	defer out.Stop()

	rate := out.SampleRate()
	total := rate * seconds
	var (
		mu  sync.Mutex
		pos int
	)
	done := make(chan struct{})
	var once sync.Once

	fmt.Printf("Playing %d s tone at %d Hz...\n", seconds, rate)
	err = out.Start(func(buf []float32) {
		mu.Lock()
		p := pos
		pos += len(buf)
		mu.Unlock()

		for i := range buf {
			if p+i >= total {
				buf[i] = 0
				once.Do(func() { close(done) })
				continue
			}
			buf[i] = 0.2 * float32(math.Sin(2*math.Pi*440*float64(p+i)/float64(rate)))
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(time.Duration(seconds+5) * time.Second):
		return fmt.Errorf("tone playback did not complete")
	}
	return out.Stop()
}
