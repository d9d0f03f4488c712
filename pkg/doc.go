// Package torrentcombine reconstructs complete files from several partial
// copies of the same payload, where missing regions are zero-filled.
//
// # Core API
//
// The main entry point is Run, which discovers candidate files, groups them
// and merges every group:
//
//	cfg := torrentcombine.RunConfig{
//		Roots:   []string{"/downloads"},
//		MinSize: torrentcombine.DefaultMinFileSize,
//		Options: torrentcombine.Options{SrcDirs: []string{"/seed"}},
//	}
//	report, err := torrentcombine.Run(ctx, cfg)
//	fmt.Println(report.Summary)
//
// # Merge Model
//
// All candidates of a group must have the same length. They are read in
// ChunkSize steps and combined with a byte-wise OR. A candidate is
// compatible when every byte is either zero or equal to the combined byte;
// a single incompatible byte makes the whole group a conflict and nothing
// is written. A candidate that equals the combined result everywhere is
// complete. Incomplete candidates outside the source directories get the
// merged content, either as a <name>.merged sibling or, with Replace, in
// place.
//
// Groups of at least MmapThreshold bytes are read through read-only
// memory maps; smaller groups, or all groups with NoMmap, through buffered
// readers. Both produce identical results.
//
// # Processing a Single Group
//
//	tracker := torrentcombine.NewTempTracker()
//	defer tracker.Cleanup()
//	gp := torrentcombine.NewGroupProcessor(torrentcombine.Options{Replace: true}, tracker)
//	result, err := gp.ProcessGroup(torrentcombine.Group{Key: "a", Paths: paths}, nil)
//
// # Configuration
//
// Settings live in <root>/.torrent-combine/config (see LoadConfig). Enable
// debug output:
//
//	torrentcombine.SetDebugFlags("merge,cache")
//	torrentcombine.SetVerboseLevel(2)
package torrentcombine
