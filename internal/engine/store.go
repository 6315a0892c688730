package engine

// recordStore holds records in insertion order. Every record has exactly
// width values.
type recordStore struct {
	records []Record
	width   int
}

func (s *recordStore) len() int { return len(s.records) }

func (s *recordStore) at(i int) Record { return s.records[i] }

func (s *recordStore) append(r Record) int {
	s.records = append(s.records, r)
	return len(s.records) - 1
}

// widen extends every record by one absent value. The three-index slice
// forces a fresh backing array so records shared with other cubes are not
// written through.
func (s *recordStore) widen() {
	for i, r := range s.records {
		s.records[i] = append(r[:len(r):len(r)], nil)
	}
	s.width++
}
