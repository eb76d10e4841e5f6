// Package spec parses declarative end-to-end test cases for Pingvin.
//
// # Case Format
//
// Each case is a YAML file with the following structure:
//
//	tags: [fast, generic]          # string or list, optional
//	requirements:                  # optional
//	  system_memory: 2048          # MB
//	  gpu_support: true
//	  gpu_memory: 4096             # MB per device
//	dependency:                    # optional, run before reconstruction
//	  data: noise/noise.mrd
//	  checksum: 0123456789abcdef0123456789abcdef
//	  args: "--config noise.xml"
//	reconstruction:
//	  data: cartesian/input.mrd
//	  checksum: fedcba9876543210fedcba9876543210
//	  run:                         # either run (one entry per pipeline stage) or args
//	    - args: "--config stage1.xml"
//	    - args: "--config stage2.xml"
//	validation:
//	  reference: cartesian/reference.mrd
//	  checksum: 00112233445566778899aabbccddeeff
//	  tests:
//	    - image_series: 0
//	      scale_comparison_threshold: 0.01   # optional, default 0.01
//	      value_comparison_threshold: 0.01   # optional, default 0.01
//
// Structural problems (missing data, checksum, reference or tests keys) are
// reported as *KeyError. The decoded document is then checked against the
// embedded CUE schema in schema.cue.
package spec
