package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/scribelabs/scribe-core/internal/protocol"
)

// scribe-submit publishes a WAV file as a transcription job and streams the
// resulting events to stdout. Useful for poking at a running scribed.
func main() {
	var (
		serverURL   string
		wavPath     string
		language    string
		translate   bool
		timeout     time.Duration
		cancelAfter time.Duration
	)

	flag.StringVar(&serverURL, "server", nats.DefaultURL, "NATS server URL")
	flag.StringVar(&wavPath, "file", "", "Path to a WAV file to transcribe")
	flag.StringVar(&language, "language", "", "Language hint (empty for auto-detect)")
	flag.BoolVar(&translate, "translate", false, "Translate output to English")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Give up after this long")
	flag.DurationVar(&cancelAfter, "cancel-after", 0, "Request cancellation after this delay (0 disables)")
	flag.Parse()

	if wavPath == "" {
		fmt.Fprintln(os.Stderr, "usage: scribe-submit -file audio.wav [-server nats://...]")
		os.Exit(2)
	}

	wav, err := os.ReadFile(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", wavPath, err)
		os.Exit(1)
	}

	nc, err := nats.Connect(serverURL, nats.Name("scribe-submit"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer nc.Close()

	jobID := uuid.NewString()
	done := make(chan int, 1)

	printEvent := func(kind string, msg *nats.Msg) {
		fmt.Printf("%s %s\n", kind, msg.Data)
	}
	progressSub, err := nc.Subscribe(protocol.ProgressSubject(jobID), func(msg *nats.Msg) {
		printEvent("progress", msg)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
		os.Exit(1)
	}
	defer progressSub.Unsubscribe()

	segmentSub, err := nc.Subscribe(protocol.SegmentSubject(jobID), func(msg *nats.Msg) {
		printEvent("segments", msg)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
		os.Exit(1)
	}
	defer segmentSub.Unsubscribe()

	resultSub, err := nc.Subscribe(protocol.ResultSubject(jobID), func(msg *nats.Msg) {
		printEvent("result", msg)
		var result protocol.ResultEvent
		code := 0
		if json.Unmarshal(msg.Data, &result) == nil && result.Status == protocol.StatusFailed {
			code = 1
		}
		done <- code
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
		os.Exit(1)
	}
	defer resultSub.Unsubscribe()

	job := protocol.AudioJob{
		JobID:     jobID,
		WAV:       wav,
		Language:  language,
		Translate: translate,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal job: %v\n", err)
		os.Exit(1)
	}
	if err := nc.Publish(protocol.JobSubject(jobID), payload); err != nil {
		fmt.Fprintf(os.Stderr, "publish job: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("submitted %s (%d bytes)\n", jobID, len(wav))

	if cancelAfter > 0 {
		time.AfterFunc(cancelAfter, func() {
			_ = nc.Publish(protocol.CancelSubject(jobID), nil)
			fmt.Println("cancellation requested")
		})
	}

	select {
	case code := <-done:
		os.Exit(code)
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "timed out waiting for result")
		os.Exit(1)
	}
}
