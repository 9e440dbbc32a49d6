package plot

import (
	"errors"
	"fmt"

	"github.com/annel0/skyplots/internal/vec"
	"github.com/google/uuid"
)

var (
	// ErrCursorExhausted — курсор спирали больше не может продвинуться без переполнения
	ErrCursorExhausted = errors.New("plot cursor exhausted")
	// ErrUnbound — операции не передан мир для размещения
	ErrUnbound = errors.New("registry is not bound to a world")
	// ErrDuplicateSpawn — в шаблоне больше одного маркера точки появления (только предупреждение)
	ErrDuplicateSpawn = errors.New("duplicate spawn marker")
	// ErrNoContainer — в позиции нет контейнера для структурированных данных
	ErrNoContainer = errors.New("no container at position")
	// ErrCorruptState — сохранённое состояние реестра не проходит проверку
	ErrCorruptState = errors.New("corrupt registry state")
)

// PlacementError — мир не смог выполнить размещение блока.
// Размещение прерывается, участок не регистрируется.
type PlacementError struct {
	Owner    uuid.UUID
	Template string
	Block    string
	Pos      vec.Vec3
	Err      error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placing %s at %s for template %q (owner %s): %v", e.Block, e.Pos, e.Template, e.Owner, e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}
