// internal/game/config.go
package game

// Simulation constants shared by every room.
const (
	TickRate     = 60 // simulation ticks per second
	WinningScore = 20
	BallRadius   = 5.0

	// MinVerticalSpeed is the smallest |vy| allowed after a ball reset.
	// Keeps the ball off a pure-horizontal trajectory that paddles could
	// hold forever.
	MinVerticalSpeed = 1.0
)

// Clamp ranges and defaults for room geometry. Custom settings outside a
// range collapse to its nearest bound; zero values take the default.
const (
	DefaultCanvasSize = 800.0
	MinCanvasSize     = 400.0
	MaxCanvasSize     = 1600.0

	DefaultPaddleSize = 100.0
	MinPaddleSize     = 50.0
	MaxPaddleSize     = 200.0

	DefaultPaddleThickness = 10.0
	MinPaddleThickness     = 5.0
	MaxPaddleThickness     = 30.0

	DefaultPaddleSpeed = 10.0
	MinPaddleSpeed     = 2.0
	MaxPaddleSpeed     = 30.0

	DefaultBallSpeed = 5.0
	MinBallSpeed     = 2.0
	MaxBallSpeed     = 15.0
)

// CustomSettings is the optional per-player override block sent with
// join_queue. The first queued player's settings govern the room.
type CustomSettings struct {
	CanvasWidth     float64 `json:"canvasWidth,omitempty"`
	CanvasHeight    float64 `json:"canvasHeight,omitempty"`
	PaddleSize      float64 `json:"paddleSize,omitempty"`
	PaddleThickness float64 `json:"paddleThickness,omitempty"`
	PaddleSpeed     float64 `json:"paddleSpeed,omitempty"`
	BallSpeed       float64 `json:"ballSpeed,omitempty"`
}

// Config is the effective, validated geometry of one room.
type Config struct {
	CanvasSize      float64 `json:"canvasSize"`
	PaddleSize      float64 `json:"paddleSize"`
	PaddleThickness float64 `json:"paddleThickness"`
	PaddleSpeed     float64 `json:"paddleSpeed"`
	BallSpeed       float64 `json:"ballSpeed"`
}

// ResolveConfig turns optional overrides into an effective Config. The
// canvas is always square: the larger of the two requested dimensions wins.
// Never trusts the client to stay inside the safe ranges.
func ResolveConfig(s *CustomSettings) Config {
	cfg := Config{
		CanvasSize:      DefaultCanvasSize,
		PaddleSize:      DefaultPaddleSize,
		PaddleThickness: DefaultPaddleThickness,
		PaddleSpeed:     DefaultPaddleSpeed,
		BallSpeed:       DefaultBallSpeed,
	}
	if s == nil {
		return cfg
	}
	if size := max(s.CanvasWidth, s.CanvasHeight); size != 0 {
		cfg.CanvasSize = clamp(size, MinCanvasSize, MaxCanvasSize)
	}
	if s.PaddleSize != 0 {
		cfg.PaddleSize = clamp(s.PaddleSize, MinPaddleSize, MaxPaddleSize)
	}
	if s.PaddleThickness != 0 {
		cfg.PaddleThickness = clamp(s.PaddleThickness, MinPaddleThickness, MaxPaddleThickness)
	}
	if s.PaddleSpeed != 0 {
		cfg.PaddleSpeed = clamp(s.PaddleSpeed, MinPaddleSpeed, MaxPaddleSpeed)
	}
	if s.BallSpeed != 0 {
		cfg.BallSpeed = clamp(s.BallSpeed, MinBallSpeed, MaxBallSpeed)
	}
	return cfg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
