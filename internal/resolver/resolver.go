package resolver

import (
	"context"
	"math"
	"sort"
	"time"

	"watchtower/internal/bus"
	"watchtower/internal/repository"
	"watchtower/pkg/cache"
	"watchtower/pkg/logging"
	"watchtower/pkg/models"
	"watchtower/pkg/retry"
)

// AlertPolicy decides which cameras an AI alert activates. The default
// policy returns none; sites may plug in their own coupling.
type AlertPolicy func(ctx context.Context, msg *bus.MessageData) []models.Camera

// Options configures resolver caching and retry behavior.
type Options struct {
	CacheTTL       time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	AlertPolicy    AlertPolicy
}

// DefaultOptions mirrors the documented configuration defaults.
func DefaultOptions() Options {
	return Options{
		CacheTTL:       30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
	}
}

// commandFamilies maps normalized movement commands to camera direction
// families.
var commandFamilies = map[string]string{
	bus.CommandForward:    models.DirectionForward,
	bus.CommandBackward:   models.DirectionBackward,
	bus.CommandTurnLeft:   models.DirectionLeft,
	bus.CommandTurnRight:  models.DirectionRight,
	bus.CommandStationary: models.DirectionIdle,
}

// Resolver maps processed messages to the cameras they should activate. It
// reads the routing model through a TTL cache with single-flight loading and
// retries transient repository failures with exponential backoff; when
// retries exhaust it serves the last-known-good cached value.
type Resolver struct {
	repo        repository.CameraRepository
	cache       *cache.Cache
	logger      logging.Entry
	retryCfg    retry.Config
	alertPolicy AlertPolicy
}

// New builds a resolver over the given repository.
func New(repo repository.CameraRepository, logger logging.Logger, opts Options) *Resolver {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Resolver{
		repo:   repo,
		cache:  cache.New(cache.Options{TTL: opts.CacheTTL}, cache.MetricsHooks{}),
		logger: logging.WithComponent(logger, "resolver"),
		retryCfg: retry.Config{
			MaxRetries:   opts.MaxRetries,
			InitialDelay: opts.InitialBackoff,
			MaxDelay:     opts.InitialBackoff * (1 << 4),
			JitterFactor: 0.1,
			ShouldRetry:  repository.IsTransient,
		},
		alertPolicy: opts.AlertPolicy,
	}
}

// Resolve returns the cameras a message should activate. It degrades to an
// empty list rather than failing; the event is always delivered.
func (r *Resolver) Resolve(ctx context.Context, msg *bus.MessageData) []models.Camera {
	switch msg.Type {
	case bus.TypeDirectionResult:
		return r.resolveDirection(ctx, msg)
	case bus.TypeAngleValue:
		return r.resolveAngle(ctx, msg)
	case bus.TypeAIAlert:
		if r.alertPolicy != nil {
			if cams := r.alertPolicy(ctx, msg); cams != nil {
				return cams
			}
		}
		return []models.Camera{}
	default:
		return []models.Camera{}
	}
}

// Invalidate expires every cached routing query. Last-known-good values stay
// available for degraded operation.
func (r *Resolver) Invalidate() {
	r.cache.InvalidateAll()
	r.logger.Info("Resolver cache invalidated")
}

func (r *Resolver) resolveDirection(ctx context.Context, msg *bus.MessageData) []models.Camera {
	command, _ := msg.Data["command"].(string)
	family, ok := commandFamilies[command]
	if !ok {
		r.logger.WithFields(logging.Fields{
			"message_id": msg.MessageID,
			"command":    command,
		}).Warn("Unknown command family")
		return []models.Camera{}
	}

	cameras := r.camerasByDirection(ctx, family)

	out := make([]models.Camera, 0, len(cameras))
	for _, cam := range cameras {
		if cam.IsOnline() {
			out = append(out, cam)
		}
	}
	sortCameras(out)
	return out
}

func (r *Resolver) resolveAngle(ctx context.Context, msg *bus.MessageData) []models.Camera {
	angle, ok := msg.Data["angle"].(float64)
	if !ok {
		return []models.Camera{}
	}
	normalized := wrapAngle(angle)

	ranges := r.enabledAngleRanges(ctx)

	// Union of camera ids across matching ranges, duplicates dropped on
	// first sight.
	seen := make(map[string]bool)
	ids := make([]string, 0, 4)
	for _, ar := range ranges {
		if !ar.Enabled || !ar.Contains(normalized) {
			continue
		}
		for _, id := range ar.CameraIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	cameras := make([]models.Camera, 0, len(ids))
	for _, id := range ids {
		if cam := r.cameraByID(ctx, id); cam != nil {
			cameras = append(cameras, *cam)
		}
	}
	sortCameras(cameras)
	return cameras
}

// wrapAngle normalizes a sensor angle to [0, 360).
func wrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped
}

func sortCameras(cams []models.Camera) {
	sort.Slice(cams, func(i, j int) bool {
		if cams[i].Name != cams[j].Name {
			return cams[i].Name < cams[j].Name
		}
		return cams[i].ID < cams[j].ID
	})
}

func (r *Resolver) camerasByDirection(ctx context.Context, family string) []models.Camera {
	val, ok := r.load(ctx, "cameras_by_direction", family, func(ctx context.Context) (interface{}, error) {
		return r.repo.ListCamerasByDirection(ctx, family)
	})
	if !ok {
		return nil
	}
	return val.([]models.Camera)
}

func (r *Resolver) enabledAngleRanges(ctx context.Context) []models.AngleRange {
	val, ok := r.load(ctx, "angle_ranges_enabled", "", func(ctx context.Context) (interface{}, error) {
		return r.repo.ListEnabledAngleRanges(ctx)
	})
	if !ok {
		return nil
	}
	return val.([]models.AngleRange)
}

func (r *Resolver) cameraByID(ctx context.Context, id string) *models.Camera {
	val, ok := r.load(ctx, "camera_by_id", id, func(ctx context.Context) (interface{}, error) {
		return r.repo.GetCameraByID(ctx, id)
	})
	if !ok {
		return nil
	}
	return val.(*models.Camera)
}

// load runs one repository operation through the cache and retry policy.
// The cache key is the operation name plus the argument fingerprint. On
// retry exhaustion the last-known-good value is served; fatal errors skip
// straight to the fallback.
func (r *Resolver) load(ctx context.Context, op, fingerprint string, loader func(ctx context.Context) (interface{}, error)) (interface{}, bool) {
	key := op
	if fingerprint != "" {
		key = op + ":" + fingerprint
	}

	val, err := r.cache.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return retry.Do(ctx, r.retryCfg, r.logger.Logger, op, func() (interface{}, error) {
			return loader(ctx)
		})
	})
	if err == nil {
		return val, true
	}

	entry := r.logger.WithFields(logging.Fields{
		"operation":   op,
		"fingerprint": fingerprint,
	}).WithError(err)

	if fb, ok := r.cache.Fallback(key); ok {
		entry.Warn("Repository query failed; serving last-known-good value")
		return fb, true
	}

	entry.Error("Repository query failed with no cached fallback")
	return nil, false
}

// CurrentState is the routing snapshot published when a streaming sink
// attaches.
type CurrentState struct {
	Directions  map[string][]models.Camera `json:"directions"`
	AngleRanges []models.AngleRange        `json:"angle_ranges"`
}

// Snapshot assembles the full routing state. Missing pieces degrade to
// empty collections.
func (r *Resolver) Snapshot(ctx context.Context) CurrentState {
	state := CurrentState{
		Directions:  make(map[string][]models.Camera, len(models.DirectionFamilies)),
		AngleRanges: []models.AngleRange{},
	}

	for _, family := range models.DirectionFamilies {
		cams := r.camerasByDirection(ctx, family)
		if cams == nil {
			cams = []models.Camera{}
		}
		sorted := make([]models.Camera, len(cams))
		copy(sorted, cams)
		sortCameras(sorted)
		state.Directions[family] = sorted
	}

	if ranges := r.enabledAngleRanges(ctx); ranges != nil {
		state.AngleRanges = ranges
	}
	return state
}
