package recommend

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrWorkerStopped = errors.New("recommend worker stopped")

const (
	DefaultStepDelay   = 350 * time.Millisecond
	maxRecommendations = 3
)

// scriptedEpochs is replayed on every Train.
var scriptedEpochs = []struct {
	log      TrainingLog
	progress int
}{
	{TrainingLog{Epoch: 1, Loss: 0.92, Accuracy: 0.41}, 35},
	{TrainingLog{Epoch: 2, Loss: 0.56, Accuracy: 0.68}, 65},
	{TrainingLog{Epoch: 3, Loss: 0.28, Accuracy: 0.87}, 100},
}

type command struct {
	train     *trainCommand
	recommend *User
	reply     chan []Product
}

type trainCommand struct {
	users    []User
	products []Product
}

type Option func(*Worker)

func WithStepDelay(d time.Duration) Option {
	return func(w *Worker) { w.stepDelay = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// Worker processes train and recommend commands one at a time on its own
// goroutine. All state below the channels is owned by that goroutine.
type Worker struct {
	sink      Sink
	stepDelay time.Duration
	logger    *zap.Logger

	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once

	weights map[string]float64
	catalog []Product
	users   []User
	context *Context
}

func NewWorker(sink Sink, opts ...Option) *Worker {
	w := &Worker{
		sink:      sink,
		stepDelay: DefaultStepDelay,
		logger:    zap.NewNop(),
		cmds:      make(chan command, 16),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes commands until ctx is done or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("recommend worker started")
	defer w.logger.Info("recommend worker stopped")

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.done:
			return nil
		case cmd := <-w.cmds:
			switch {
			case cmd.train != nil:
				w.train(ctx, cmd.train)
			case cmd.recommend != nil:
				cmd.reply <- w.recommend(*cmd.recommend)
			}
		}
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Worker) submit(ctx context.Context, cmd command) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.cmds <- cmd:
		return nil
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Train queues a training run and returns once it is accepted. Progress is
// reported through the sink.
func (w *Worker) Train(ctx context.Context, users []User, products []Product) error {
	return w.submit(ctx, command{train: &trainCommand{users: users, products: products}})
}

// Recommend returns up to three catalog products the user has not bought, in
// catalog order, and publishes them as an EventRecommend.
func (w *Worker) Recommend(ctx context.Context, user User) ([]Product, error) {
	reply := make(chan []Product, 1)
	if err := w.submit(ctx, command{recommend: &user, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case products := <-reply:
		return products, nil
	case <-w.done:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) train(ctx context.Context, cmd *trainCommand) {
	w.users = cmd.users
	w.catalog = cmd.products
	w.weights = make(map[string]float64, len(cmd.products))
	for i, p := range cmd.products {
		w.weights[strconv.Itoa(p.ID)] = math.Round((1+float64(i)/10)*100) / 100
	}
	w.context = BuildContext(w.catalog, w.users)

	w.logger.Info("training started",
		zap.Int("users", len(w.users)),
		zap.Int("products", len(w.catalog)),
		zap.Int("dimensions", w.context.Dimensions))

	w.sink.Publish(Event{Type: EventProgress, Data: Progress{Progress: 10}})
	w.sink.Publish(Event{Type: EventVisData, Data: VisData{
		Weights: w.weights,
		Catalog: w.catalog,
		Users:   w.users,
	}})

	for _, step := range scriptedEpochs {
		if !w.wait(ctx) {
			w.logger.Warn("training interrupted", zap.Int("epoch", step.log.Epoch))
			return
		}
		w.sink.Publish(Event{Type: EventProgress, Data: Progress{Progress: step.progress}})
		w.sink.Publish(Event{Type: EventTrainingLog, Data: step.log})
	}

	w.sink.Publish(Event{Type: EventTrainingComplete})
	w.logger.Info("training complete")
}

func (w *Worker) wait(ctx context.Context) bool {
	if w.stepDelay <= 0 {
		return true
	}
	timer := time.NewTimer(w.stepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	}
}

func (w *Worker) recommend(user User) []Product {
	purchased := make(map[int]struct{}, len(user.Purchases))
	for _, p := range user.Purchases {
		purchased[p.ID] = struct{}{}
	}

	out := make([]Product, 0, maxRecommendations)
	for _, p := range w.catalog {
		if len(out) == maxRecommendations {
			break
		}
		if _, ok := purchased[p.ID]; ok {
			continue
		}
		out = append(out, p)
	}

	w.sink.Publish(Event{Type: EventRecommend, Data: Recommendation{User: user, Recommendations: out}})
	return out
}
