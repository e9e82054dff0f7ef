package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/log"
)

// ErrClosed is returned by a MeshClient after Close.
var ErrClosed = errors.New("detection: mesh client closed")

// MeshConfig configures the remote face mesh service.
type MeshConfig struct {
	URL              string        // ws://host:port/mesh
	HandshakeTimeout time.Duration // Dial timeout
	RequestTimeout   time.Duration // Round-trip budget per frame
	MaxFaces         int           // Faces requested from the service
	RefineLandmarks  bool          // Request the 10 iris points
	MinConfidence    float64       // Detection and tracking confidence floor
}

// DefaultMeshConfig returns defaults for a service on localhost.
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		URL:              "ws://127.0.0.1:8765/mesh",
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   500 * time.Millisecond,
		MaxFaces:         1,
		RefineLandmarks:  true,
		MinConfidence:    0.8,
	}
}

// meshHello is sent once after connecting.
type meshHello struct {
	Type            string  `json:"type"`
	MaxFaces        int     `json:"max_num_faces"`
	RefineLandmarks bool    `json:"refine_landmarks"`
	MinConfidence   float64 `json:"min_confidence"`
}

// meshReply is the service's answer to one binary JPEG frame.
type meshReply struct {
	Faces []struct {
		Score     float64      `json:"score"`
		Landmarks [][3]float64 `json:"landmarks"`
	} `json:"faces"`
	Error string `json:"error,omitempty"`
}

// MeshClient sends JPEG frames to a face mesh service over a websocket and
// receives landmarks as JSON. One request is in flight at a time.
type MeshClient struct {
	config MeshConfig
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// DialMesh connects to the face mesh service.
func DialMesh(ctx context.Context, cfg MeshConfig) (*MeshClient, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("mesh connect failed: %w", err)
	}

	hello := meshHello{
		Type:            "config",
		MaxFaces:        cfg.MaxFaces,
		RefineLandmarks: cfg.RefineLandmarks,
		MinConfidence:   cfg.MinConfidence,
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mesh config failed: %w", err)
	}

	log.Info("face mesh connected", "url", cfg.URL, "refine", cfg.RefineLandmarks)
	return &MeshClient{config: cfg, conn: conn}, nil
}

// Detect sends one frame and waits for its landmarks.
func (c *MeshClient) Detect(jpeg []byte) ([]FaceLandmarks, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(c.config.RequestTimeout)
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, jpeg); err != nil {
		return nil, fmt.Errorf("send frame: %w", err)
	}

	c.conn.SetReadDeadline(deadline)
	_, msg, err := c.conn.ReadMessage()
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}

	return decodeReply(msg)
}

func decodeReply(msg []byte) ([]FaceLandmarks, error) {
	var reply meshReply
	if err := json.Unmarshal(msg, &reply); err != nil {
		return nil, fmt.Errorf("decode landmarks: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("mesh service: %s", reply.Error)
	}

	faces := make([]FaceLandmarks, 0, len(reply.Faces))
	for _, f := range reply.Faces {
		pts := make([]Landmark, len(f.Landmarks))
		for i, p := range f.Landmarks {
			pts[i] = Landmark{X: p[0], Y: p[1], Z: p[2]}
		}
		faces = append(faces, FaceLandmarks{Points: pts, Confidence: f.Score})
	}
	return faces, nil
}

// Close terminates the connection.
func (c *MeshClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
