package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
)

// pcmUnitFrames matches the raw-PCM access unit length.
const pcmUnitFrames = 352

func newToneCmd() *cobra.Command {
	var (
		out     string
		seconds float64
		freq    float64
	)
	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Write a capture file holding a raw-PCM test tone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTone(out, seconds, freq)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "tone.cap", "capture file to write")
	cmd.Flags().Float64Var(&seconds, "seconds", 5, "tone length")
	cmd.Flags().Float64Var(&freq, "freq", audio.ToneFrequency, "tone frequency in Hz")
	return cmd
}

// writeTone writes big-endian stereo PCM units; play it with --codec pcm.
func writeTone(path string, seconds, freq float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	total := int(seconds * audio.ToneSampleRate)
	samples := audio.GenerateSineWave(total, freq)
	unit := make([]byte, pcmUnitFrames*4)
	for start := 0; start+pcmUnitFrames <= len(samples); start += pcmUnitFrames {
		for i, s := range samples[start : start+pcmUnitFrames] {
			hi, lo := byte(uint16(s)>>8), byte(s)
			unit[i*4], unit[i*4+1] = hi, lo
			unit[i*4+2], unit[i*4+3] = hi, lo
		}
		pts := int64(start) * 1_000_000 / audio.ToneSampleRate
		if err := ingest.WriteRecord(w, ingest.Record{Kind: ingest.KindAudio, PTS: pts, Payload: unit}); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
