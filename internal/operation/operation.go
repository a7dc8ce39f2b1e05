// Package operation описывает жизненный цикл асинхронной операции
// с реестром: Idle -> Pending -> Confirmed | Failed.
package operation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase фаза операции
type Phase int

const (
	Idle Phase = iota
	Pending
	Confirmed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal операция завершена
func (p Phase) Terminal() bool {
	return p == Confirmed || p == Failed
}

var (
	ErrAlreadyStarted = errors.New("operation already started")
	ErrPending        = errors.New("operation is pending")
)

// Snapshot состояние операции для отдачи наружу
type Snapshot struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Owner     string      `json:"owner"`
	Phase     string      `json:"phase"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	SettledAt *time.Time  `json:"settled_at,omitempty"`
}

// Tracked то, что умеет хранить Registry
type Tracked interface {
	ID() string
	Owner() string
	Snapshot() Snapshot
}

// Operation одна попытка действия. Повтор это новый экземпляр.
type Operation[T any] struct {
	id        string
	kind      string
	owner     string
	createdAt time.Time

	mu        sync.Mutex
	phase     Phase
	started   bool
	result    T
	err       error
	settledAt time.Time

	// итог settle, Reset его не трогает
	outcome    T
	outcomeErr error
	done      chan struct{}
	onSettle  []func(T, error)
}

// New создает операцию в фазе Idle
func New[T any](kind, owner string) *Operation[T] {
	return &Operation[T]{
		id:        uuid.NewString(),
		kind:      kind,
		owner:     owner,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (o *Operation[T]) ID() string    { return o.id }
func (o *Operation[T]) Kind() string  { return o.kind }
func (o *Operation[T]) Owner() string { return o.owner }

// OnSettle регистрирует колбэк, вызываемый один раз при завершении
func (o *Operation[T]) OnSettle(fn func(T, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSettle = append(o.onSettle, fn)
}

// Start переводит операцию в Pending и выполняет fn в отдельной
// горутине. Отмена ctx вызывающего на fn не влияет.
func (o *Operation[T]) Start(ctx context.Context, fn func(ctx context.Context) (T, error)) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.phase = Pending
	o.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		result, err := fn(detached)
		o.settle(result, err)
	}()
	return nil
}

func (o *Operation[T]) settle(result T, err error) {
	o.mu.Lock()
	if o.phase != Pending {
		o.mu.Unlock()
		return
	}

	if err != nil {
		var zero T
		o.phase = Failed
		o.result = zero
		o.err = err
	} else {
		o.phase = Confirmed
		o.result = result
	}
	o.outcome, o.outcomeErr = o.result, o.err
	o.settledAt = time.Now()
	callbacks := o.onSettle
	o.onSettle = nil
	o.mu.Unlock()

	// колбэки до закрытия done, чтобы Wait видел их эффекты
	for _, fn := range callbacks {
		fn(result, err)
	}
	close(o.done)
}

// Wait ждет завершения операции и возвращает ее итог, в том числе
// после Reset
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()

	var zero T
	if !started {
		return zero, errors.New("operation not started")
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-o.done:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome, o.outcomeErr
}

// Done закрывается при завершении
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Phase текущая фаза
func (o *Operation[T]) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Result результат, только в фазе Confirmed
func (o *Operation[T]) Result() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != Confirmed {
		var zero T
		return zero, false
	}
	return o.result, true
}

// Err ошибка, только в фазе Failed
func (o *Operation[T]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != Failed {
		return nil
	}
	return o.err
}

// Reset возвращает завершенную операцию в Idle. Повторно запустить
// ее нельзя.
func (o *Operation[T]) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.phase {
	case Pending:
		return ErrPending
	case Idle:
		return nil
	}

	var zero T
	o.phase = Idle
	o.result = zero
	o.err = nil
	return nil
}

// Snapshot реализует Tracked
func (o *Operation[T]) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		ID:        o.id,
		Kind:      o.kind,
		Owner:     o.owner,
		Phase:     o.phase.String(),
		CreatedAt: o.createdAt,
	}
	switch o.phase {
	case Confirmed:
		s.Result = o.result
	case Failed:
		s.Error = o.err.Error()
	}
	if !o.settledAt.IsZero() {
		settled := o.settledAt
		s.SettledAt = &settled
	}
	return s
}
