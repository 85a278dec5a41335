package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
	goutils "go.viam.com/utils"
	"go.viam.com/utils/testutils"

	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/pointcloud"
	"github.com/agimus-project/agimus/problem"
	agimustestutils "github.com/agimus-project/agimus/testutils"
)

const testConfig = "../../config/data/robot.json"

func runApp(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	err := newApp(&out).RunContext(ctx, append([]string{"agimus"}, args...))
	return out.String(), err
}

func TestOctreeAction(t *testing.T) {
	cloud := pointcloud.New()
	for _, p := range [][3]float64{{0, 0, 100}, {10, 0, 100}, {0, 40, 100}, {-30, -30, 120}} {
		test.That(t, cloud.Set(pointcloud.NewVector(p[0], p[1], p[2]), pointcloud.NewBasicData()), test.ShouldBeNil)
	}
	fn := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, pointcloud.WriteToPCDFile(cloud, fn, pointcloud.PCDAscii), test.ShouldBeNil)

	out, err := runApp(context.Background(), "octree", "--pcd", fn, "--resolution", "5")
	test.That(t, err, test.ShouldBeNil)
	for _, s := range []string{"POINTS", "LEAVES", "Distance mean", "Bounds X"} {
		test.That(t, strings.ToUpper(out), test.ShouldContainSubstring, strings.ToUpper(s))
	}

	las := filepath.Join(t.TempDir(), "octree.las")
	_, err = runApp(context.Background(), "octree", "--pcd", fn, "--resolution", "5", "--out", las)
	test.That(t, err, test.ShouldBeNil)
	written, err := pointcloud.NewFromFile(las)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, written.Size(), test.ShouldEqual, 4)

	_, err = runApp(context.Background(), "octree", "--pcd", fn, "--out", filepath.Join(t.TempDir(), "octree.ply"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(context.Background(), "octree", "--pcd", fn, "--resolution", "0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid resolution")

	_, err = runApp(context.Background(), "octree", "--pcd", filepath.Join(t.TempDir(), "cloud.ply"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSampleAction(t *testing.T) {
	out, err := runApp(context.Background(), "sample", "--config", testConfig, "--dt", "0.25")
	test.That(t, err, test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	// position, velocity, the tool frame and the center of mass, both with velocities, at 0, 0.25 and 0.5
	test.That(t, lines, test.ShouldHaveLength, 18)

	var first struct {
		Time    float64   `json:"time"`
		Topic   string    `json:"topic"`
		Payload []float64 `json:"payload"`
	}
	test.That(t, json.Unmarshal([]byte(lines[0]), &first), test.ShouldBeNil)
	test.That(t, first.Time, test.ShouldEqual, 0.)
	test.That(t, first.Topic, test.ShouldEqual, "/agimus/position")
	test.That(t, first.Payload, test.ShouldResemble, []float64{0, 0})

	var last struct {
		Time  float64 `json:"time"`
		Topic string  `json:"topic"`
	}
	test.That(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last), test.ShouldBeNil)
	test.That(t, last.Time, test.ShouldEqual, 0.5)
	test.That(t, last.Topic, test.ShouldEqual, "/agimus/velocity/com")

	_, err = runApp(context.Background(), "sample", "--config", testConfig, "--dt", "0")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(context.Background(), "sample", "--config", testConfig, "--path", "3")
	test.That(t, err, test.ShouldBeError, problem.NewPathNotFoundError(3))

	_, err = runApp(context.Background(), "sample")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSampleLogFile(t *testing.T) {
	raw, err := os.ReadFile(testConfig)
	test.That(t, err, test.ShouldBeNil)
	var cfg map[string]interface{}
	test.That(t, json.Unmarshal(raw, &cfg), test.ShouldBeNil)
	cfg["log_file"] = map[string]interface{}{"path": "agimus.log"}
	cfg["debug"] = true

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "robot.json")
	raw, err = json.Marshal(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(cfgPath, raw, 0o600), test.ShouldBeNil)

	_, err = runApp(context.Background(), "sample", "--config", cfgPath, "--dt", "0.25")
	test.That(t, err, test.ShouldBeNil)
	logged, err := os.ReadFile(filepath.Join(dir, "agimus.log"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logged), test.ShouldContainSubstring, "agimus.fov")
	test.That(t, string(logged), test.ShouldContainSubstring, "added feature group")
}

func TestSchemaAction(t *testing.T) {
	out, err := runApp(context.Background(), "schema")
	test.That(t, err, test.ShouldBeNil)
	var schema map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &schema), test.ShouldBeNil)
	test.That(t, schema["$schema"], test.ShouldNotBeNil)
	for _, s := range []string{`"feature_groups"`, `"log_file"`, `"bind_address"`} {
		test.That(t, out, test.ShouldContainSubstring, s)
	}
}

func TestServeAction(t *testing.T) {
	port, err := goutils.TryReserveRandomPort()
	test.That(t, err, test.ShouldBeNil)
	addr := fmt.Sprintf("localhost:%d", port)
	t.Setenv("AGIMUS_BIND_ADDRESS", addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		_, err := runApp(ctx, "serve", "--config", testConfig)
		errCh <- err
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	test.That(t, agimustestutils.WaitSuccessfulDial(dialCtx, addr), test.ShouldBeNil)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/obstacles")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, string(body), test.ShouldContainSubstring, `"held"`)

	cancel()
	test.That(t, <-errCh, test.ShouldBeNil)
}

func TestWatchFeatureGroups(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	data, err := os.ReadFile(testConfig)
	test.That(t, err, test.ShouldBeNil)
	cfgPath := filepath.Join(t.TempDir(), "agimus.json")
	test.That(t, os.WriteFile(cfgPath, data, 0o600), test.ShouldBeNil)

	fov := fieldofview.New(nil, logger)
	test.That(t, reloadFeatureGroups(cfgPath, fov), test.ShouldBeNil)
	test.That(t, fov.FeatureGroups(), test.ShouldHaveLength, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		done <- watchFeatureGroups(ctx, cfgPath, fov, logger)
	})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("watching configuration").Len(), test.ShouldEqual, 1)
	})

	var raw map[string]any
	test.That(t, json.Unmarshal(data, &raw), test.ShouldBeNil)
	groups := raw["feature_groups"].([]any)
	raw["feature_groups"] = append(groups, groups[0])
	updated, err := json.Marshal(raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(cfgPath, updated, 0o600), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, fov.FeatureGroups(), test.ShouldHaveLength, 2)
	})

	test.That(t, os.WriteFile(cfgPath, []byte("{"), 0o600), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("keeping previous feature groups").Len(), test.ShouldBeGreaterThan, 0)
	})
	test.That(t, fov.FeatureGroups(), test.ShouldHaveLength, 2)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}
