package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Client message types.
const (
	typeStartRecording = "start_recording"
	typeAudioChunk     = "audio_chunk"
	typeStopRecording  = "stop_recording"
)

// Server message types.
const (
	typePartialTranscript = "PartialTranscript"
	typeFinalTranscript   = "FinalTranscript"
	typeAnalysis          = "analysis"
	typeError             = "error"
)

// ClientMessage is one decoded browser-to-server message.
type ClientMessage interface {
	clientMessage()
}

// StartRecording begins a new recording session.
type StartRecording struct {
	CaseID              string
	WitnessName         string
	DepositionConductor string
	OpposingCounsel     string
	DepositionGoals     string
}

// AudioChunk carries one decoded PCM frame.
type AudioChunk struct {
	Frame []byte
}

// StopRecording ends the active recording session.
type StopRecording struct{}

func (StartRecording) clientMessage() {}
func (AudioChunk) clientMessage()     {}
func (StopRecording) clientMessage()  {}

// clientEnvelope is the raw JSON shape of every client message.
type clientEnvelope struct {
	Type                string `json:"type"`
	CaseID              string `json:"caseId"`
	WitnessName         string `json:"witnessName"`
	DepositionConductor string `json:"depositionConductor"`
	OpposingCounsel     string `json:"opposingCounsel"`
	DepositionGoals     string `json:"depositionGoals"`
	Chunk               string `json:"chunk"`
}

// ParseClientMessage decodes one client message into its variant.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch env.Type {
	case typeStartRecording:
		if env.CaseID == "" {
			return nil, fmt.Errorf("start_recording requires caseId")
		}
		if env.WitnessName == "" {
			return nil, fmt.Errorf("start_recording requires witnessName")
		}
		return StartRecording{
			CaseID:              env.CaseID,
			WitnessName:         env.WitnessName,
			DepositionConductor: env.DepositionConductor,
			OpposingCounsel:     env.OpposingCounsel,
			DepositionGoals:     env.DepositionGoals,
		}, nil

	case typeAudioChunk:
		frame, err := base64.StdEncoding.DecodeString(env.Chunk)
		if err != nil {
			return nil, fmt.Errorf("audio_chunk is not valid base64: %w", err)
		}
		return AudioChunk{Frame: frame}, nil

	case typeStopRecording:
		return StopRecording{}, nil

	case "":
		return nil, fmt.Errorf("message has no type")

	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// transcriptMessage is a PartialTranscript or FinalTranscript server event.
type transcriptMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// analysisMessage relays a language-model analysis result.
type analysisMessage struct {
	Type     string      `json:"type"`
	Analysis interface{} `json:"analysis"`
}

// errorMessage notifies the client of a relay error.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newPartialTranscript(text string) transcriptMessage {
	return transcriptMessage{Type: typePartialTranscript, Transcript: text}
}

func newFinalTranscript(text string) transcriptMessage {
	return transcriptMessage{Type: typeFinalTranscript, Transcript: text}
}

func newAnalysis(result interface{}) analysisMessage {
	return analysisMessage{Type: typeAnalysis, Analysis: result}
}

func newError(message string) errorMessage {
	return errorMessage{Type: typeError, Message: message}
}
