package vec

import "fmt"

// Vec2 представляет координаты на горизонтальной плоскости (X, Z).
// Используется для координат чанков и узлов решётки участков.
type Vec2 struct {
	X, Z int
}

// ToChunkCoords преобразует глобальные координаты в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Z: v.Z >> 4} // Деление на 16 с округлением вниз
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Z: v.Z & 0xF} // Модуль 16
}

// ChebyshevTo возвращает расстояние Чебышёва до другой точки
func (v Vec2) ChebyshevTo(other Vec2) int {
	dx := abs(v.X - other.X)
	dz := abs(v.Z - other.Z)
	if dx > dz {
		return dx
	}
	return dz
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Z)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
