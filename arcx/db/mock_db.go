package db

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/report"
)

// MockContentStore is an in-memory ContentStore
type MockContentStore struct {
	mu         sync.Mutex
	nextID     int64
	caseDir    string
	files      map[int64]*File
	children   map[int64][]int64
	attributes map[int64]map[string]string
	artifacts  []report.Artifact
	calls      []DerivedContent
	failNames  map[string]error
}

func NewMockContentStore(caseDir string) *MockContentStore {
	return &MockContentStore{
		nextID:     1,
		caseDir:    caseDir,
		files:      make(map[int64]*File),
		children:   make(map[int64][]int64),
		attributes: make(map[int64]map[string]string),
		failNames:  make(map[string]error),
	}
}

// AddRoot registers a root item backed by an absolute local path
func (m *MockContentStore) AddRoot(name, localPath string, size int64) *File {
	return m.AddItem(FileOptions{
		Name:       name,
		Size:       size,
		Type:       content.FileTypeLocal,
		IsFile:     true,
		Allocated:  true,
		UniquePath: "/" + name,
		LocalPath:  localPath,
	})
}

// AddItem registers an arbitrary item; ID is assigned by the store
func (m *MockContentStore) AddItem(o FileOptions) *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.nextID
	m.nextID++
	if o.CaseDir == "" {
		o.CaseDir = m.caseDir
	}
	f := NewFile(o)
	m.files[f.id] = f
	if o.ParentID != 0 {
		m.children[o.ParentID] = append(m.children[o.ParentID], f.id)
	}
	return f
}

// FailOn makes AddDerivedContent return err for every entry with this name
func (m *MockContentStore) FailOn(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNames[name] = err
}

func (m *MockContentStore) AddDerivedContent(ctx context.Context, d DerivedContent) (content.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, d)
	if err, ok := m.failNames[d.Name]; ok {
		return nil, err
	}
	if d.Name == "" {
		return nil, ErrEmptyName
	}
	parent, ok := m.files[d.ParentID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParent, d.ParentID)
	}

	f := NewFile(FileOptions{
		ID:         m.nextID,
		Name:       d.Name,
		ParentID:   d.ParentID,
		Size:       d.Size,
		Type:       content.FileTypeDerived,
		IsFile:     d.IsFile,
		Allocated:  true,
		UniquePath: strings.TrimSuffix(parent.uniquePath, "/") + "/" + d.Name,
		LocalPath:  d.LocalRelPath,
		CaseDir:    m.caseDir,
	})
	f.Digest = d.Digest
	m.nextID++
	m.files[f.id] = f
	m.children[d.ParentID] = append(m.children[d.ParentID], f.id)
	return f, nil
}

func (m *MockContentStore) HasChildren(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children[id]) > 0, nil
}

func (m *MockContentStore) FileTypeSignature(ctx context.Context, id int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.attributes[id][AttrFileTypeSig]
	return v, ok, nil
}

// SetFileTypeSignature records a content-type attribute for an item
func (m *MockContentStore) SetFileTypeSignature(id int64, mimeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attributes[id] == nil {
		m.attributes[id] = make(map[string]string)
	}
	m.attributes[id][AttrFileTypeSig] = mimeType
}

func (m *MockContentStore) AddArtifact(ctx context.Context, a report.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[a.ItemID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, a.ItemID)
	}
	m.artifacts = append(m.artifacts, a)
	return nil
}

// Children returns the direct children of an item in registration order
func (m *MockContentStore) Children(id int64) []*File {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*File, 0, len(m.children[id]))
	for _, cid := range m.children[id] {
		out = append(out, m.files[cid])
	}
	return out
}

// Artifacts returns all recorded artifacts
func (m *MockContentStore) Artifacts() []report.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]report.Artifact, len(m.artifacts))
	copy(out, m.artifacts)
	return out
}

// Calls returns every AddDerivedContent request in call order, failed ones included
func (m *MockContentStore) Calls() []DerivedContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DerivedContent, len(m.calls))
	copy(out, m.calls)
	return out
}
