// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type fixtureFile struct {
	Courses []struct {
		ID      string   `yaml:"id"`
		Lessons []Lesson `yaml:"lessons"`
	} `yaml:"courses"`
}

// MockClient serves the embedded fixture catalog.
type MockClient struct {
	lessons map[string]Lesson
	courses map[string][]string
}

// NewMock loads the fixtures. Lessons without an explicit video URL point at
// the simulated backend under base.
func NewMock(base string) (*MockClient, error) {
	var ff fixtureFile
	if err := yaml.Unmarshal(fixturesYAML, &ff); err != nil {
		return nil, fmt.Errorf("catalog: parse fixtures: %w", err)
	}

	base = strings.TrimRight(base, "/")
	m := &MockClient{lessons: make(map[string]Lesson), courses: make(map[string][]string)}
	for _, c := range ff.Courses {
		for _, l := range c.Lessons {
			l.CourseID = c.ID
			if l.VideoURL == "" && base != "" {
				l.VideoURL = MockManifestURL(base, l.ID)
			}
			m.lessons[l.ID] = l
			m.courses[c.ID] = append(m.courses[c.ID], l.ID)
		}
	}
	return m, nil
}

// MockManifestURL is the master manifest address the simulated backend serves for id.
func MockManifestURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/lessons/" + url.PathEscape(id) + "/master-manifest"
}

func (m *MockClient) Lesson(_ context.Context, id string) (Lesson, error) {
	l, ok := m.lessons[id]
	if !ok {
		return Lesson{}, &Error{Sentinel: ErrLessonNotFound, Operation: "lesson " + id}
	}
	return l, nil
}

func (m *MockClient) Lessons(_ context.Context, courseID string) ([]Lesson, error) {
	ids, ok := m.courses[courseID]
	if !ok {
		return nil, &Error{Sentinel: ErrLessonNotFound, Operation: "course " + courseID}
	}
	out := make([]Lesson, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.lessons[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// All returns every fixture lesson ordered by course and position.
func (m *MockClient) All() []Lesson {
	out := make([]Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseID != out[j].CourseID {
			return out[i].CourseID < out[j].CourseID
		}
		return out[i].Order < out[j].Order
	})
	return out
}
