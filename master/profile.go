//  Copyright (c) 2017-2018 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package master

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	memCom "github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// Profile file names are derived from the application name with spaces
// stripped:
//
//	<AppName>.txt         DATASETID:REFCOUNT per line
//	<AppName>-JobDAG.txt  JOBID-DATASETID:REF[;DATASETID:REF]* per line
//	<AppName>-Peers.txt   DATASETID:DATASETID per line, both directions
func profileFileNames(appName string) (refs, jobDAG, peers string) {
	stem := strings.Replace(appName, " ", "", -1)
	return stem + ".txt", stem + "-JobDAG.txt", stem + "-Peers.txt"
}

// LoadProfiles reads the three profile files from dir. Missing files are
// benign and yield empty maps; malformed lines are an error.
func LoadProfiles(fs utils.FileSystem, dir, appName string) (*memCom.RefProfile, error) {
	profile := memCom.NewRefProfile()
	refsName, jobDAGName, peersName := profileFileNames(appName)

	if err := readProfileFile(fs, filepath.Join(dir, refsName), func(line string) error {
		d, n, err := parseRefPair(line)
		if err != nil {
			return err
		}
		profile.RefProfile[d] = n
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", refsName)
	}

	if err := readProfileFile(fs, filepath.Join(dir, jobDAGName), func(line string) error {
		job, refs, err := parseJobLine(line)
		if err != nil {
			return err
		}
		profile.RefProfileByJob[job] = refs
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", jobDAGName)
	}

	if err := readProfileFile(fs, filepath.Join(dir, peersName), func(line string) error {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return errors.Errorf("malformed peer line %q", line)
		}
		a, err1 := strconv.Atoi(parts[0])
		b, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return errors.Errorf("malformed peer line %q", line)
		}
		// Peering is symmetric.
		profile.PeerProfile[memCom.DatasetID(a)] = memCom.DatasetID(b)
		profile.PeerProfile[memCom.DatasetID(b)] = memCom.DatasetID(a)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", peersName)
	}

	utils.GetLogger().With(
		"datasets", len(profile.RefProfile),
		"jobs", len(profile.RefProfileByJob),
		"peers", len(profile.PeerProfile),
	).Info("loaded reference profiles")
	return profile, nil
}

// readProfileFile feeds every non-empty line to handle. A missing file is not
// an error.
func readProfileFile(fs utils.FileSystem, path string, handle func(line string) error) error {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			utils.GetLogger().With("path", path).Info("profile file absent, degrading gracefully")
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if err := handle(line); err != nil {
			return err
		}
	}
	return nil
}

// parseRefPair parses DATASETID:REFCOUNT.
func parseRefPair(s string) (memCom.DatasetID, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("malformed reference pair %q", s)
	}
	d, err1 := strconv.Atoi(parts[0])
	n, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, errors.Errorf("malformed reference pair %q", s)
	}
	return memCom.DatasetID(d), n, nil
}

// parseJobLine parses JOBID-DATASETID:REF[;DATASETID:REF]*. The section after
// the dash may be empty.
func parseJobLine(line string) (memCom.JobID, map[memCom.DatasetID]int, error) {
	parts := strings.SplitN(line, "-", 2)
	if len(parts) != 2 {
		return 0, nil, errors.Errorf("malformed job line %q", line)
	}
	jobID, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, errors.Errorf("malformed job id in %q", line)
	}
	refs := make(map[memCom.DatasetID]int)
	if parts[1] != "" {
		for _, pair := range strings.Split(parts[1], ";") {
			d, n, err := parseRefPair(pair)
			if err != nil {
				return 0, nil, err
			}
			refs[d] = n
		}
	}
	return memCom.JobID(jobID), refs, nil
}
