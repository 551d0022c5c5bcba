package dispatch

import "github.com/google/uuid"

func aggregateNet(memberStatus map[uuid.UUID]Status) float64 {
	var net float64
	for _, status := range memberStatus {
		net += status.Net
	}
	return net
}

func aggregateCapacity(memberStatus map[uuid.UUID]Status) float64 {
	var capacity float64
	for _, status := range memberStatus {
		if status.Capacity > 0 {
			capacity += status.Capacity
		}
	}
	return capacity
}

// weights shares the system mismatch by capacity, or equally when no member
// reports capacity.
func weights(memberStatus map[uuid.UUID]Status) map[uuid.UUID]float64 {
	w := make(map[uuid.UUID]float64, len(memberStatus))
	total := aggregateCapacity(memberStatus)
	for pid, status := range memberStatus {
		switch {
		case total > 0 && status.Capacity > 0:
			w[pid] = status.Capacity / total
		case total > 0:
			w[pid] = 0
		default:
			w[pid] = 1 / float64(len(memberStatus))
		}
	}
	return w
}
