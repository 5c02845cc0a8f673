package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang/glog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	analysis "github.com/zhouzirui/z-tavern/moodchat/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

// Nets the remote engine must serve before detection can start.
const (
	NetFaceDetector   = "tiny_face_detector"
	NetFaceExpression = "face_expression"
)

// RemoteConfig points at the static model location of a face-api compatible
// inference server.
type RemoteConfig struct {
	ModelsURL string
	Client    *http.Client
}

// RemoteEngine delegates inference to an HTTP server that hosts the face
// detector and expression nets.
type RemoteEngine struct {
	client         *http.Client
	detectURL      string
	expressionsURL string
}

type manifest struct {
	Nets           []string `json:"nets"`
	DetectURL      string   `json:"detectUrl"`
	ExpressionsURL string   `json:"expressionsUrl"`
}

// LoadRemote fetches the model manifest from the fixed models location and
// verifies both nets are available.
func LoadRemote(ctx context.Context, cfg RemoteConfig) (*RemoteEngine, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.ModelsURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: models url is required", ErrEngineNotLoaded)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/manifest.json", nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch manifest: %v", ErrEngineNotLoaded, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: manifest status %d", ErrEngineNotLoaded, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := sonic.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrEngineNotLoaded, err)
	}

	for _, required := range []string{NetFaceDetector, NetFaceExpression} {
		if !contains(m.Nets, required) {
			return nil, fmt.Errorf("%w: net %q missing from manifest", ErrEngineNotLoaded, required)
		}
	}

	engine := &RemoteEngine{
		client:         client,
		detectURL:      orDefault(m.DetectURL, base+"/detect"),
		expressionsURL: orDefault(m.ExpressionsURL, base+"/expressions"),
	}
	glog.Infof("[vision] remote engine loaded from %s", base)
	return engine, nil
}

// DetectFaces posts the JPEG frame to the detector endpoint.
func (e *RemoteEngine) DetectFaces(ctx context.Context, frame video.Frame) ([]Face, error) {
	body, err := e.post(ctx, e.detectURL, "image/jpeg", frame.Data)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	var out wireFaces
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return out.toFaces(), nil
}

type expressionRequest struct {
	Image string `json:"image"`
	Box   Box    `json:"box"`
}

type expressionResponse struct {
	Expressions *orderedmap.OrderedMap[string, float64] `json:"expressions"`
}

// Expressions classifies the face region. Scores keep the server's order.
func (e *RemoteEngine) Expressions(ctx context.Context, frame video.Frame, face Face) (*analysis.Scores, error) {
	if face.Expressions != nil && face.Expressions.Len() > 0 {
		return face.Expressions, nil
	}

	payload, err := sonic.Marshal(expressionRequest{
		Image: base64.StdEncoding.EncodeToString(frame.Data),
		Box:   face.Box,
	})
	if err != nil {
		return nil, fmt.Errorf("encode expression request: %w", err)
	}

	body, err := e.post(ctx, e.expressionsURL, "application/json", payload)
	if err != nil {
		return nil, fmt.Errorf("classify expressions: %w", err)
	}

	var out expressionResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode expressions: %w", err)
	}
	return knownScores(out.Expressions)
}

func (e *RemoteEngine) post(ctx context.Context, url, contentType string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
