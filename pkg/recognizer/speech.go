// Package recognizer turns stored call recordings into channel-tagged
// utterances using Google Cloud Speech-to-Text.
package recognizer

import (
	"context"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"

	"github.com/callsense/callsense/internal/model"
)

// Utterance is one recognized phrase with the channel it was spoken on
// and its offset from the start of the recording.
type Utterance struct {
	Channel int
	Start   time.Duration
	Text    string
}

// Recognizer transcribes recordings addressed by storage URI.
type Recognizer interface {
	Recognize(ctx context.Context, audio model.AudioMetadata) ([]Utterance, error)
	Close() error
}

// speechEncodings maps probed encodings to the API's encoding enum.
// Formats with self-describing headers are left unspecified and the
// service detects them from the file.
var speechEncodings = map[string]speechpb.RecognitionConfig_AudioEncoding{
	"LINEAR16":   speechpb.RecognitionConfig_LINEAR16,
	"MULAW":      speechpb.RecognitionConfig_MULAW,
	"RAW_OPUS":   speechpb.RecognitionConfig_OGG_OPUS,
	"MPEG_AUDIO": speechpb.RecognitionConfig_MP3,
}

type speechRecognizer struct {
	client       *speech.Client
	languageCode string
	model        string
}

// NewSpeechRecognizer opens a Speech-to-Text client. languageCode is a
// BCP-47 tag; model selects the service-side recognition model and may
// be empty for the default.
func NewSpeechRecognizer(ctx context.Context, languageCode, recognitionModel, credentialsFile string) (Recognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "creating speech client")
	}
	return &speechRecognizer{
		client:       client,
		languageCode: languageCode,
		model:        recognitionModel,
	}, nil
}

// Recognize runs a long-running recognition over the stored recording.
// Each channel is recognized separately so the dialogue builder can
// interleave operator and customer phrases.
func (r *speechRecognizer) Recognize(ctx context.Context, audio model.AudioMetadata) ([]Utterance, error) {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                            speechEncodings[audio.Encoding],
		SampleRateHertz:                     int32(audio.SampleRateHertz),
		AudioChannelCount:                   int32(audio.NumChannels),
		EnableSeparateRecognitionPerChannel: audio.NumChannels > 1,
		EnableWordTimeOffsets:               true,
		LanguageCode:                        r.languageCode,
	}
	if r.model != "" {
		cfg.Model = r.model
	}

	op, err := r.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: audio.URI},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "starting recognition of %s", audio.URI)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "waiting for recognition of %s", audio.URI)
	}

	var utterances []Utterance
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 || alts[0].GetTranscript() == "" {
			continue
		}

		u := Utterance{
			Channel: int(result.GetChannelTag()),
			Text:    alts[0].GetTranscript(),
		}
		if words := alts[0].GetWords(); len(words) > 0 {
			u.Start = words[0].GetStartTime().AsDuration()
		} else if end := result.GetResultEndTime(); end != nil {
			u.Start = end.AsDuration()
		}
		utterances = append(utterances, u)
	}
	return utterances, nil
}

func (r *speechRecognizer) Close() error {
	return r.client.Close()
}
