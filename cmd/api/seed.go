package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/onnwee/contentrank/internal/content"
)

// seedFile is the development fixture format for the in-memory store.
type seedFile struct {
	Items   []*content.Item                       `json:"items"`
	Users   []*content.UserContext                `json:"users"`
	Authors map[string]*content.BehavioralProfile `json:"authors"`
}

var errSeedItemID = errors.New("seed item without id")

// loadSeed fills repo from a JSON fixture and returns the number of items.
func loadSeed(path string, repo *content.InMemoryRepository) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, item := range seed.Items {
		if item == nil || item.ID == "" {
			return 0, fmt.Errorf("%w at index %d", errSeedItemID, i)
		}
		repo.Put(item)
	}
	for _, u := range seed.Users {
		if u != nil && u.UserID != "" {
			repo.PutUserContext(u)
		}
	}
	for id, p := range seed.Authors {
		if p != nil {
			repo.PutAuthorProfile(id, p)
		}
	}
	return len(seed.Items), nil
}
