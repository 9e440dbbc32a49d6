package plot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	payloads []block.Tag
}

func (c *fakeContainer) WritePayload(tag block.Tag, pos vec.Vec3) error {
	c.payloads = append(c.payloads, tag)
	return nil
}

// fakeSurface запоминает поставленные блоки и считает вызовы
type fakeSurface struct {
	mu         sync.Mutex
	catalog    *block.Catalog
	blocks     map[vec.Vec3]block.State
	containers map[vec.Vec3]*fakeContainer
	calls      int
	failAfter  int // ошибка на вызове с этим номером (1..), 0 — без ошибок
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		catalog:    block.DefaultCatalog(),
		blocks:     make(map[vec.Vec3]block.State),
		containers: make(map[vec.Vec3]*fakeContainer),
	}
}

var errWorldRefused = errors.New("world refused block")

func (s *fakeSurface) SetBlock(pos vec.Vec3, state block.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAfter > 0 && s.calls >= s.failAfter {
		return errWorldRefused
	}
	s.blocks[pos] = state
	if s.catalog.IsContainer(state.ID()) {
		if _, ok := s.containers[pos]; !ok {
			s.containers[pos] = &fakeContainer{}
		}
	} else {
		delete(s.containers, pos)
	}
	return nil
}

func (s *fakeSurface) ContainerAt(pos vec.Vec3) (Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[pos]
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *fakeSurface) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memStore — хранилище в памяти с управляемой ошибкой сохранения
type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
	fail  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	return data, ok, nil
}

func (m *memStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func mustTemplate(t *testing.T, src string) *template.Template {
	t.Helper()
	tpl, err := template.Parse("test.yaml", []byte(src))
	require.NoError(t, err)
	require.NoError(t, tpl.Validate(block.DefaultCatalog()))
	return tpl
}

// pillarTemplate — точка появления в нижнем слое и два слоя камня над ней
const pillarTemplate = `name: Pillar
layers:
  - ["!"]
  - ["#"]
  - ["#"]
mapping:
  "#": {block: stone}
`
