// Package speech narrates step content with Google Cloud Text-to-Speech.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"stepwise/internal/render"
)

// maxRequestBytes stays under the 5000 byte input limit of one
// SynthesizeSpeech call.
const maxRequestBytes = 4500

var ErrNothingToSay = errors.New("no text to narrate")

// Narrator turns plain text into MP3 audio.
type Narrator interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Google narrates with a standard en-US voice. Credentials are found through
// GOOGLE_APPLICATION_CREDENTIALS.
type Google struct {
	client *texttospeech.Client
	voice  *texttospeechpb.VoiceSelectionParams
}

func NewGoogle(ctx context.Context) (*Google, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create tts client: %w", err)
	}
	return &Google{
		client: client,
		voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
			Name:         "en-US-Standard-F",
		},
	}, nil
}

func (g *Google) Close() error { return g.client.Close() }

// Synthesize splits long text into several requests and joins the MP3
// frames.
func (g *Google) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := splitText(text, maxRequestBytes)
	if len(chunks) == 0 {
		return nil, ErrNothingToSay
	}
	var out bytes.Buffer
	for _, chunk := range chunks {
		resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: g.voice,
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("SynthesizeSpeech: %w", err)
		}
		out.Write(resp.AudioContent)
	}
	return out.Bytes(), nil
}

// StepText is the spoken form of a step: its title followed by the content
// with Markdown removed.
func StepText(md *render.Markdown, title, content string) (string, error) {
	body, err := md.PlainText(content)
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return body, nil
	case body == "":
		return title + ".", nil
	}
	return title + ". " + body, nil
}

// splitText cuts text at sentence or word boundaries into pieces of at most
// limit bytes.
func splitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexAny(text[:limit], ".!?")
		if cut <= 0 {
			cut = strings.LastIndexByte(text[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		} else {
			cut++
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
