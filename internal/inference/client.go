// Package inference provides gRPC-based implementations of cascade's
// ObjectDetector, PresenceGuard, and VisionSummarizer interfaces, dialing a
// sidecar inference service the same way orbo dials its YOLO detection
// service.
//
// Grounded on internal/detection/grpc_detector.go's GRPCDetector: dial with
// keepalive parameters, a cached health state re-checked on a TTL, and
// fmt.Errorf-wrapped call failures. Unlike GRPCDetector's persistent
// bidirectional AnalyzeStream (built for a multi-task YOLO11 service this
// module has no equivalent of), each call here is a plain unary RPC, since
// cascade.ObjectDetector/VisionSummarizer's contract is a single
// request/response per call, not a multiplexed task stream.
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/orbo-vision/coreflow/internal/frame"
)

// Client wraps a gRPC connection to an external detector / vision-language
// service, implementing cascade.ObjectDetector, cascade.PresenceGuard, and
// cascade.VisionSummarizer.
type Client struct {
	endpoint string
	conn     *grpc.ClientConn

	healthMu   sync.RWMutex
	healthy    bool
	lastHealth time.Time
}

// Dial connects to endpoint with the same keepalive posture as orbo's
// GRPCDetector.connect: short keepalive ping interval so a dead service is
// detected quickly rather than hanging a cascade stage until its budget
// expires.
func Dial(endpoint string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	conn, err := grpc.DialContext(ctx, endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("inference.Dial %s: %w", endpoint, err)
	}
	return &Client{endpoint: endpoint, conn: conn}, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

type detectRequest struct {
	Classes       []string `json:"classes"`
	MinConfidence float64  `json:"min_confidence"`
	NMSIoU        float64  `json:"nms_iou"`
	JPEG          []byte   `json:"jpeg"`
}

type detectedObject struct {
	Class      string  `json:"class"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

type detectResponse struct {
	Objects []detectedObject `json:"objects"`
}

// Detect implements cascade.ObjectDetector over a unary RPC.
func (c *Client) Detect(ctx context.Context, ref *frame.Ref, classes []string, minConfidence, nmsIoU float64) ([]frame.Detection, error) {
	req := &detectRequest{Classes: classes, MinConfidence: minConfidence, NMSIoU: nmsIoU, JPEG: ref.Data}
	resp := &detectResponse{}
	if err := c.invoke(ctx, "/coreflow.inference.v1.InferenceService/Detect", req, resp); err != nil {
		return nil, err
	}

	dets := make([]frame.Detection, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		classID := o.ClassID
		dets = append(dets, frame.Detection{
			Class:      o.Class,
			ClassID:    &classID,
			Confidence: o.Confidence,
			Box:        frame.BoundingBox{X: o.X, Y: o.Y, W: o.W, H: o.H}.Clamp(),
		})
	}
	return dets, nil
}

type presenceRequest struct {
	PreviousSummary string `json:"previous_summary"`
}

type presenceResponse struct {
	Present bool `json:"present"`
}

// CheckPresence implements cascade.PresenceGuard over a unary RPC.
func (c *Client) CheckPresence(ctx context.Context, previousSummary string) (bool, error) {
	req := &presenceRequest{PreviousSummary: previousSummary}
	resp := &presenceResponse{}
	if err := c.invoke(ctx, "/coreflow.inference.v1.InferenceService/CheckPresence", req, resp); err != nil {
		return false, err
	}
	return resp.Present, nil
}

type describeRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	JPEG      []byte `json:"jpeg"`
}

type describeResponse struct {
	Summary string `json:"summary"`
}

// DescribeImage implements cascade.VisionSummarizer over a unary RPC.
func (c *Client) DescribeImage(ctx context.Context, ref *frame.Ref, prompt string, maxTokens int) (string, error) {
	req := &describeRequest{Prompt: prompt, MaxTokens: maxTokens, JPEG: ref.Data}
	resp := &describeResponse{}
	if err := c.invoke(ctx, "/coreflow.inference.v1.InferenceService/DescribeImage", req, resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(callContentSubtype())); err != nil {
		return fmt.Errorf("inference.invoke %s: %w", method, err)
	}
	return nil
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// IsHealthy reports service health, caching a positive result for 30s so a
// health probe isn't issued on every frame, mirroring GRPCDetector.IsHealthy.
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.healthMu.RLock()
	if time.Since(c.lastHealth) < 30*time.Second && c.healthy {
		c.healthMu.RUnlock()
		return true
	}
	c.healthMu.RUnlock()

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp := &healthResponse{}
	err := c.invoke(healthCtx, "/coreflow.inference.v1.InferenceService/HealthCheck", &struct{}{}, resp)

	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if err != nil {
		c.healthy = false
		return false
	}
	c.healthy = resp.Status == "healthy" && resp.ModelLoaded
	c.lastHealth = time.Now()
	return c.healthy
}
