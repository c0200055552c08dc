package recommend

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func catalog() []Product {
	return []Product{
		{ID: 1, Name: "Camisa", Category: "roupas", Price: 50, Color: "azul"},
		{ID: 2, Name: "Tenis", Category: "calcados", Price: 200, Color: "preto"},
		{ID: 3, Name: "Bone", Category: "acessorios", Price: 30, Color: "azul"},
		{ID: 4, Name: "Calca", Category: "roupas", Price: 120, Color: "preto"},
		{ID: 5, Name: "Meia", Category: "roupas", Price: 10, Color: "branco"},
	}
}

func users() []User {
	return []User{
		{ID: 1, Name: "Erick", Age: 30, Purchases: []Purchase{{ID: 1, Name: "Camisa"}, {ID: 3, Name: "Bone"}}},
		{ID: 2, Name: "Ana", Age: 20, Purchases: []Purchase{{ID: 1, Name: "Camisa"}}},
		{ID: 3, Name: "Carlos", Age: 40},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func startWorker(t *testing.T, sink Sink, opts ...Option) *Worker {
	t.Helper()
	w := NewWorker(sink, append([]Option{WithStepDelay(0)}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestBuildContext(t *testing.T) {
	c := BuildContext(catalog(), users())

	if c.MinAge != 20 || c.MaxAge != 40 || c.MinPrice != 10 || c.MaxPrice != 200 {
		t.Fatalf("unexpected bounds: %+v", c)
	}
	if !reflect.DeepEqual(c.Colors, []string{"azul", "preto", "branco"}) {
		t.Fatalf("colors not in first-seen order: %v", c.Colors)
	}
	if !reflect.DeepEqual(c.Categories, []string{"roupas", "calcados", "acessorios"}) {
		t.Fatalf("categories not in first-seen order: %v", c.Categories)
	}
	if c.ColorsIndex["branco"] != 2 || c.CategoriesIndex["acessorios"] != 2 {
		t.Fatalf("unexpected indexes: %v %v", c.ColorsIndex, c.CategoriesIndex)
	}
	if c.Dimensions != 2+3+3 {
		t.Fatalf("expected 8 dimensions, got %d", c.Dimensions)
	}

	// Camisa bought by ages 30 and 20, Bone by 30, the rest by nobody.
	want := map[string]float64{"Camisa": 0.25, "Bone": 0.5, "Tenis": 0.5, "Calca": 0.5, "Meia": 0.5}
	if !reflect.DeepEqual(c.ProductAvgAgeNorm, want) {
		t.Fatalf("unexpected average ages: %v", c.ProductAvgAgeNorm)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	c := BuildContext(nil, nil)
	if c.Dimensions != 2 || c.MinAge != 0 || c.MaxPrice != 0 {
		t.Fatalf("unexpected empty context: %+v", c)
	}
}

func TestBusSubscribeAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	var got []string
	unsubA := bus.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Type)) })
	bus.On(EventTrainingComplete, func(e Event) { got = append(got, "b:"+string(e.Type)) })

	bus.Publish(Event{Type: EventProgress})
	bus.Publish(Event{Type: EventTrainingComplete})
	unsubA()
	unsubA()
	bus.Publish(Event{Type: EventTrainingComplete})

	want := []string{"a:progress", "a:training_complete", "b:training_complete", "b:training_complete"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func waitFor(t *testing.T, rec *recorder, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := rec.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(rec.snapshot()))
	return nil
}

func TestWorkerTrainEventSequence(t *testing.T) {
	rec := &recorder{}
	w := startWorker(t, rec)

	if err := w.Train(context.Background(), users(), catalog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := waitFor(t, rec, 9)

	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	wantTypes := []EventType{
		EventProgress, EventVisData,
		EventProgress, EventTrainingLog,
		EventProgress, EventTrainingLog,
		EventProgress, EventTrainingLog,
		EventTrainingComplete,
	}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Fatalf("unexpected event order: %v", types)
	}

	if p := events[0].Data.(Progress); p.Progress != 10 {
		t.Fatalf("expected initial progress 10, got %d", p.Progress)
	}
	vis := events[1].Data.(VisData)
	wantWeights := map[string]float64{"1": 1, "2": 1.1, "3": 1.2, "4": 1.3, "5": 1.4}
	if !reflect.DeepEqual(vis.Weights, wantWeights) {
		t.Fatalf("unexpected weights: %v", vis.Weights)
	}
	if p := events[6].Data.(Progress); p.Progress != 100 {
		t.Fatalf("expected final progress 100, got %d", p.Progress)
	}
	if l := events[7].Data.(TrainingLog); l != (TrainingLog{Epoch: 3, Loss: 0.28, Accuracy: 0.87}) {
		t.Fatalf("unexpected last log: %+v", l)
	}
}

func TestWorkerRecommend(t *testing.T) {
	rec := &recorder{}
	w := startWorker(t, rec)
	ctx := context.Background()

	if got, err := w.Recommend(ctx, users()[0]); err != nil || len(got) != 0 {
		t.Fatalf("expected no recommendations before training, got %v (%v)", got, err)
	}

	if err := w.Train(ctx, users(), catalog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := w.Recommend(ctx, users()[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := []int{}
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []int{2, 4, 5}) {
		t.Fatalf("expected products 2, 4, 5, got %v", ids)
	}

	events := rec.snapshot()
	last := events[len(events)-1]
	if last.Type != EventRecommend {
		t.Fatalf("expected recommend event last, got %s", last.Type)
	}
	if r := last.Data.(Recommendation); r.User.Name != "Erick" || len(r.Recommendations) != 3 {
		t.Fatalf("unexpected recommendation payload: %+v", r)
	}
}

func TestWorkerStopped(t *testing.T) {
	w := NewWorker(&recorder{})
	w.Stop()
	w.Stop()
	if err := w.Train(context.Background(), nil, nil); !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}
	if _, err := w.Recommend(context.Background(), User{}); !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}
}

func TestWorkerCancelDuringTraining(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, WithStepDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := w.Train(context.Background(), users(), catalog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, rec, 2)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	for _, e := range rec.snapshot() {
		if e.Type == EventTrainingComplete {
			t.Fatal("cancelled run should not complete")
		}
	}
}
