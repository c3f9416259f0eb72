package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/serisow/craftvid/script_type"
)

// Memory is an in-process Repository.
type Memory struct {
	mu       sync.RWMutex
	scripts  map[string]*script_type.Script
	sceneIdx map[string]string // scene id -> script id
	channels map[string]*script_type.Channel
	compiles map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		scripts:  make(map[string]*script_type.Script),
		sceneIdx: make(map[string]string),
		channels: make(map[string]*script_type.Channel),
		compiles: make(map[string]time.Time),
	}
}

func (m *Memory) SaveScript(ctx context.Context, s *script_type.Script) error {
	if err := checkOrdinals(s); err != nil {
		return err
	}

	c := cloneScript(s)
	for i := range c.Scenes {
		c.Scenes[i].ScriptID = c.ID
	}
	c.SortScenes()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range c.Scenes {
		if owner, ok := m.sceneIdx[sc.ID]; ok && owner != c.ID {
			return fmt.Errorf("scene %s belongs to script %s: %w", sc.ID, owner, ErrInvalid)
		}
	}
	if old, ok := m.scripts[s.ID]; ok {
		if err := keepStored(c, old); err != nil {
			return err
		}
	}
	m.scripts[c.ID] = c
	for _, sc := range c.Scenes {
		m.sceneIdx[sc.ID] = c.ID
	}
	return nil
}

func (m *Memory) GetScript(ctx context.Context, id string) (*script_type.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return nil, fmt.Errorf("script %s: %w", id, ErrNotFound)
	}
	return cloneScript(s), nil
}

func (m *Memory) GetScene(ctx context.Context, id string) (*script_type.Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, err := m.sceneLocked(id)
	if err != nil {
		return nil, err
	}
	c := cloneScene(*sc)
	return &c, nil
}

func (m *Memory) sceneLocked(id string) (*script_type.Scene, error) {
	s, ok := m.scripts[m.sceneIdx[id]]
	if !ok {
		return nil, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	for i := range s.Scenes {
		if s.Scenes[i].ID == id {
			return &s.Scenes[i], nil
		}
	}
	return nil, fmt.Errorf("scene %s: %w", id, ErrNotFound)
}

func (m *Memory) SetSceneAsset(ctx context.Context, sceneID string, component script_type.Component, ref *script_type.AssetRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, err := m.sceneLocked(sceneID)
	if err != nil {
		return err
	}
	sc.SetAsset(component, ref)
	return nil
}

func (m *Memory) SetCompiledVideo(ctx context.Context, cv *script_type.CompiledVideo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[cv.ScriptID]
	if !ok {
		return fmt.Errorf("script %s: %w", cv.ScriptID, ErrNotFound)
	}
	c := *cv
	s.CompiledVideo = &c
	return nil
}

func (m *Memory) SaveChannel(ctx context.Context, ch *script_type.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ch
	m.channels[ch.ID] = &c
	return nil
}

func (m *Memory) GetChannel(ctx context.Context, id string) (*script_type.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	c := *ch
	return &c, nil
}

func (m *Memory) RequestCompile(ctx context.Context, scriptID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[scriptID]; !ok {
		return fmt.Errorf("script %s: %w", scriptID, ErrNotFound)
	}
	m.compiles[scriptID] = at
	return nil
}

func (m *Memory) ClearCompileRequest(ctx context.Context, scriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.compiles, scriptID)
	return nil
}

func (m *Memory) PendingCompiles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.compiles))
	at := make(map[string]time.Time, len(m.compiles))
	for id, t := range m.compiles {
		ids = append(ids, id)
		at[id] = t
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool {
		if at[ids[i]].Equal(at[ids[j]]) {
			return ids[i] < ids[j]
		}
		return at[ids[i]].Before(at[ids[j]])
	})
	return ids, nil
}
