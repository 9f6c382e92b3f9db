// Package media extracts audio parameters from downloaded recordings.
// It shells out to ffprobe, which is the one external tool the pipeline
// requires on the host.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/callsense/callsense/internal/model"
)

// codecEncodings maps ffprobe codec names to the encoding labels the
// recognizer understands. Unknown codecs leave the encoding blank and
// the record stays unprocessed rather than being sent with a wrong
// format.
var codecEncodings = map[string]string{
	"pcm_alaw":  "ALAW",
	"pcm_mulaw": "MULAW",
	"pcm_s16le": "LINEAR16",
	"pcm_s16be": "LINEAR16",
	"opus":      "RAW_OPUS",
	"mp3":       "MPEG_AUDIO",
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober reads audio parameters from local files.
type Prober struct {
	binary string
}

func NewProber() *Prober {
	return &Prober{binary: "ffprobe"}
}

// Probe inspects the file at path and returns its audio metadata. The
// URI field is left for the caller to fill once the file is uploaded.
func (p *Prober) Probe(ctx context.Context, path string) (model.AudioMetadata, error) {
	var meta model.AudioMetadata

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return meta, eris.Wrapf(err, "probing %s", path)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return meta, eris.Wrapf(err, "decoding ffprobe output for %s", path)
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.Encoding = codecEncodings[s.CodecName]
		meta.NumChannels = s.Channels
		if s.SampleRate != "" {
			rate, err := strconv.Atoi(s.SampleRate)
			if err != nil {
				return meta, eris.Wrapf(err, "parsing sample rate %q", s.SampleRate)
			}
			meta.SampleRateHertz = rate
		}
		break
	}

	if out.Format.Duration != "" {
		dur, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return meta, eris.Wrapf(err, "parsing duration %q", out.Format.Duration)
		}
		meta.DurationSeconds = dur
	}

	return meta, nil
}
