package usecase

import "telegram-x-monitor/internal/domain/model"

// WatermarkStore remembers the highest post id already seen per monitored account.
// Not safe for concurrent use; monitorUC guards it.
type WatermarkStore struct {
	marks map[model.EntityKey]model.PostID
}

func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{marks: make(map[model.EntityKey]model.PostID)}
}

func (s *WatermarkStore) Get(key model.EntityKey) (model.PostID, bool) {
	id, ok := s.marks[key]
	return id, ok
}

// Set stores id unless a higher watermark is already recorded. Returns whether it moved.
func (s *WatermarkStore) Set(key model.EntityKey, id model.PostID) bool {
	if cur, ok := s.marks[key]; ok && cur >= id {
		return false
	}
	s.marks[key] = id
	return true
}

func (s *WatermarkStore) Delete(key model.EntityKey) { delete(s.marks, key) }

func (s *WatermarkStore) Len() int { return len(s.marks) }

func (s *WatermarkStore) Keys() []model.EntityKey {
	keys := make([]model.EntityKey, 0, len(s.marks))
	for k := range s.marks {
		keys = append(keys, k)
	}
	return keys
}
