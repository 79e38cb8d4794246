package fattable

import (
	"github.com/dargueta/gofat"
	fatErrors "github.com/dargueta/gofat/errors"
)

// TruncateOrExtend brings a chain starting at startCluster to exactly
// targetClusters clusters long. It returns the (possibly new) start and end
// cluster of the resulting chain. fattable itself has no handle to
// ClusterIo, so it reports back which clusters were freed via freed so the
// caller (NodeStore) can discard their block-cache ranges.
func (t *Table) TruncateOrExtend(
	startCluster gofat.Cluster,
	targetClusters uint32,
	hint gofat.Cluster,
) (newStart, newEnd gofat.Cluster, freed []gofat.Cluster, err fatErrors.DriverError) {
	if targetClusters == 0 {
		if startCluster.IsDataCluster() {
			freed = t.collectChain(startCluster)
			if ferr := t.FreeChain(startCluster); ferr != nil {
				return 0, 0, nil, ferr
			}
		}
		return gofat.ClusterFree, gofat.ClusterFree, freed, nil
	}

	if !startCluster.IsDataCluster() {
		first, aerr := t.AllocateChain(targetClusters, hint)
		if aerr != nil {
			return 0, 0, nil, aerr
		}
		end := first
		for {
			next, nerr := t.Next(end)
			if nerr != nil {
				return 0, 0, nil, nerr
			}
			if next == gofat.ClusterEOF {
				break
			}
			end = next
		}
		return first, end, nil, nil
	}

	chain := t.collectChain(startCluster)
	current := uint32(len(chain))

	switch {
	case current == targetClusters:
		return startCluster, chain[len(chain)-1], nil, nil

	case current > targetClusters:
		keep := chain[:targetClusters]
		cut := chain[targetClusters:]
		if err := t.Set(keep[len(keep)-1], gofat.ClusterEOF); err != nil {
			return 0, 0, nil, err
		}
		if err := t.FreeChain(cut[0]); err != nil {
			return 0, 0, nil, err
		}
		return startCluster, keep[len(keep)-1], cut, nil

	default:
		shortfall := targetClusters - current
		tail := chain[len(chain)-1]
		extension, aerr := t.AllocateChain(shortfall, t.NextFree)
		if aerr != nil {
			return 0, 0, nil, aerr
		}
		if err := t.Set(tail, extension); err != nil {
			return 0, 0, nil, err
		}
		end := extension
		for {
			next, nerr := t.Next(end)
			if nerr != nil {
				return 0, 0, nil, nerr
			}
			if next == gofat.ClusterEOF {
				break
			}
			end = next
		}
		return startCluster, end, nil, nil
	}
}

func (t *Table) collectChain(start gofat.Cluster) []gofat.Cluster {
	chain := make([]gofat.Cluster, 0, 16)
	c := start
	seen := make(map[gofat.Cluster]bool)
	for c.IsDataCluster() {
		if seen[c] {
			break
		}
		seen[c] = true
		chain = append(chain, c)
		next, err := t.Next(c)
		if err != nil {
			break
		}
		c = next
	}
	return chain
}
