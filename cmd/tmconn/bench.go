package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/logging"
	"github.com/postalsys/tmconn/internal/peer"
	"github.com/postalsys/tmconn/internal/secretconn"
	"github.com/postalsys/tmconn/internal/transport"
)

func benchCmd() *cobra.Command {
	var (
		transportName string
		dataDir       string
		duration      time.Duration
		frameRate     int
		payloadSize   int
	)

	cmd := &cobra.Command{
		Use:   "bench <address>",
		Short: "Measure throughput against an echoing node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadSize <= 0 || payloadSize > secretconn.DataMaxSize {
				return fmt.Errorf("payload size must be in 1..%d", secretconn.DataMaxSize)
			}

			kp, _, err := identity.LoadOrCreate(dataDir)
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}

			tr, err := transport.New(transport.Type(transportName))
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), duration+30*time.Second)
			defer cancel()

			p, err := peer.Dial(ctx, tr, args[0], transport.DefaultDialOptions(), peer.Config{
				Keypair: kp,
				Version: secretconn.V0_34,
				Logger:  logging.Discard(),
			})
			if err != nil {
				return err
			}
			defer p.Close()

			// An unlimited run saturates the link; otherwise pace frames.
			limiter := rate.NewLimiter(rate.Inf, 1)
			if frameRate > 0 {
				limiter = rate.NewLimiter(rate.Limit(frameRate), frameRate)
			}

			payload := make([]byte, payloadSize)
			for i := range payload {
				payload[i] = byte(i)
			}

			// Drain the echo concurrently so the send side never stalls
			// on a full transport buffer.
			drained := make(chan uint64, 1)
			drainCtx, stopDrain := context.WithCancel(ctx)
			defer stopDrain()
			go func() {
				var total uint64
				buf := make([]byte, secretconn.DataMaxSize)
				for drainCtx.Err() == nil {
					n, err := p.Read(buf)
					total += uint64(n)
					if err != nil {
						break
					}
				}
				drained <- total
			}()

			var frames uint64
			var sent uint64
			start := time.Now()
			deadline := start.Add(duration)

			for time.Now().Before(deadline) {
				if err := limiter.Wait(ctx); err != nil {
					break
				}
				n, err := p.Write(payload)
				if err != nil {
					return fmt.Errorf("write: %w", err)
				}
				frames++
				sent += uint64(n)
			}
			elapsed := time.Since(start)

			// Give the echo a moment to finish, then stop the drain.
			time.Sleep(250 * time.Millisecond)
			stopDrain()
			p.Close()
			received := <-drained

			perSecond := float64(sent) / elapsed.Seconds()
			fmt.Println(renderOK("Benchmark complete"))
			fmt.Println(renderKV("remote peer", p.RemoteID().ShortString()))
			fmt.Println(renderKV("duration", elapsed.Round(time.Millisecond).String()))
			fmt.Println(renderKV("frames sent", humanize.Comma(int64(frames))))
			fmt.Println(renderKV("bytes sent", humanize.Bytes(sent)))
			fmt.Println(renderKV("bytes echoed", humanize.Bytes(received)))
			fmt.Println(renderKV("throughput", humanize.Bytes(uint64(perSecond))+"/s"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&transportName, "transport", "t", "tcp", "transport type: tcp, ws, quic")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the identity key")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "benchmark duration")
	cmd.Flags().IntVar(&frameRate, "rate", 0, "frames per second (0 = unlimited)")
	cmd.Flags().IntVar(&payloadSize, "size", secretconn.DataMaxSize, "payload bytes per frame")
	return cmd
}
