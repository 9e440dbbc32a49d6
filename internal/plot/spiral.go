package plot

import (
	"fmt"
	"math"

	"github.com/annel0/skyplots/internal/vec"
)

// Cursor — состояние обхода квадратной спирали.
// Кольцо 0 — единственная клетка (0,0); кольцо k — периметр квадрата (2k+1)×(2k+1).
// Курсор только продвигается вперёд: каждая клетка решётки выдаётся ровно один раз,
// на этом держится отсутствие пересечений участков.
type Cursor struct {
	Spacing int `json:"spacing"`
	Layer   int `json:"layer"`
	X       int `json:"x"`
	Y       int `json:"y"` // высота основания участков
	Z       int `json:"z"`
}

// NewCursor создаёт курсор в начале спирали
func NewCursor(spacing, baseY int) Cursor {
	return Cursor{Spacing: spacing, Y: baseY}
}

// Current возвращает клетку, которую выдаст следующий вызов Next
func (c *Cursor) Current() vec.Vec2 {
	return vec.Vec2{X: c.X, Z: c.Z}
}

// Next возвращает текущую клетку решётки и продвигает курсор.
// Порядок: (0,0), (-1,-1), (0,-1), (1,-1), (-1,0), (1,0), (-1,1), (0,1), (1,1), (-2,-2), ...
func (c *Cursor) Next() (vec.Vec2, error) {
	current := c.Current()

	// Кольцо пройдено — начинаем следующее с угла (-layer,-layer)
	if c.X == c.Layer && c.Z == c.Layer {
		if c.Layer == math.MaxInt {
			return vec.Vec2{}, fmt.Errorf("%w: layer %d", ErrCursorExhausted, c.Layer)
		}
		c.Layer++
		c.X = -c.Layer
		c.Z = -c.Layer
		return current, nil
	}
	// На верхней или нижней грани идём по X
	if c.X < c.Layer && (c.Z == c.Layer || c.Z == -c.Layer) {
		c.X++
		return current, nil
	}
	// На боковых гранях качаемся между -layer и layer, продвигая Z при переходе на отрицательную сторону
	c.X = -c.X
	if c.X < 0 {
		c.Z++
	}
	return current, nil
}

// Valid проверяет инварианты курсора
func (c *Cursor) Valid() error {
	switch {
	case c.Spacing <= 0:
		return fmt.Errorf("%w: spacing %d", ErrCorruptState, c.Spacing)
	case c.Layer < 0:
		return fmt.Errorf("%w: layer %d", ErrCorruptState, c.Layer)
	case c.X < -c.Layer || c.X > c.Layer || c.Z < -c.Layer || c.Z > c.Layer:
		return fmt.Errorf("%w: position (%d,%d) outside layer %d", ErrCorruptState, c.X, c.Z, c.Layer)
	}
	return nil
}

// Anchor переводит клетку решётки в центр участка в координатах мира
func (c *Cursor) Anchor(l vec.Vec2) (vec.Vec3, error) {
	x, err := CenterOf(l.X, c.Spacing)
	if err != nil {
		return vec.Vec3{}, err
	}
	z, err := CenterOf(l.Z, c.Spacing)
	if err != nil {
		return vec.Vec3{}, err
	}
	return vec.Vec3{X: x, Y: c.Y, Z: z}, nil
}

// CenterOf возвращает 8 + 16*floor(n*spacing/16): центр чанка, в который попадает
// n-я клетка решётки. Выравнивание по чанкам сохраняется для совместимости.
func CenterOf(n, spacing int) (int, error) {
	if n != 0 && spacing != 0 {
		p := n * spacing
		if p/spacing != n || (n == -1 && spacing == math.MinInt) {
			return 0, fmt.Errorf("%w: %d*%d overflows", ErrCursorExhausted, n, spacing)
		}
	}
	return 8 + 16*floorDiv(n*spacing, 16), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
