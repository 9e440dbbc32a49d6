package plot

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// TeamID возвращает детерминированный идентификатор владельца для команды.
// Это UUID версии 3 от строки "team:<имя>" без пространства имён,
// тот же, что у Java UUID.nameUUIDFromBytes, поэтому ключи совместимы с сохранёнными данными.
func TeamID(team string) uuid.UUID {
	sum := md5.Sum([]byte("team:" + team))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
