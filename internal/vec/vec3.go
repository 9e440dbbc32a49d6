package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Y — вертикальная ось.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Column возвращает проекцию на горизонтальную плоскость
func (v Vec3) Column() Vec2 {
	return Vec2{X: v.X, Z: v.Z}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Up возвращает позицию на n блоков выше
func (v Vec3) Up(n int) Vec3 {
	return Vec3{X: v.X, Y: v.Y + n, Z: v.Z}
}

// East смещает позицию по оси +X
func (v Vec3) East(n int) Vec3 {
	return Vec3{X: v.X + n, Y: v.Y, Z: v.Z}
}

// North смещает позицию по оси -Z
func (v Vec3) North(n int) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z - n}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
