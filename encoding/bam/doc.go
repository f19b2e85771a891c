// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam augments github.com/grailbio/hts/bam with read-count based
// chunk planning over bgzf virtual offsets and CIGAR expansion into aligned
// pairs. It also reads and writes .bai indexes along with their record
// counts.
package bam
