package probe_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bugger/tracetarget/pkg/probe"
	protest "github.com/go-bugger/tracetarget/pkg/tracer/test"
)

func TestMain(m *testing.M) {
	os.Exit(protest.RunTestsWithFixtures(m))
}

func TestProbeSequence(t *testing.T) {
	fixture := protest.BuildFixture("tracetarget")

	report, err := probe.Run(fixture.Path, probe.Options{})
	require.NoError(t, err)

	require.Len(t, report.Traps, 2)
	for _, site := range report.Traps {
		require.Equal(t, "runtime.breakpoint", site.Func)
	}

	require.EqualValues(t, 0, report.GlobalAtA)
	require.EqualValues(t, probe.GlobalSetValue, report.GlobalAtB)
	require.Equal(t, report.GlobalAtB, report.LocalAtB)
	require.NotZero(t, report.GlobalAddr)
	require.NotZero(t, report.LocalAddr)
	require.NotEqual(t, report.GlobalAddr, report.LocalAddr)

	require.True(t, report.StartupSeen)
	require.NotNil(t, report.Final)
	require.Equal(t, report.LocalAtB, report.Final.X)
	require.Equal(t, report.GlobalAtB, report.Final.Global)
	require.Equal(t, report.LocalAddr, report.Final.XAddr)
	require.Equal(t, report.GlobalAddr, report.Final.GlobalAddr)

	require.Equal(t, probe.ExitCode&0xff, report.ExitStatus)

	require.Empty(t, report.Problems())
}

func TestGlobalOverride(t *testing.T) {
	fixture := protest.BuildFixture("tracetarget")

	override := 0xbeef
	report, err := probe.Run(fixture.Path, probe.Options{GlobalOverride: &override})
	require.NoError(t, err)

	require.EqualValues(t, override, report.GlobalAtB)
	require.EqualValues(t, override, report.LocalAtB)
	require.NotNil(t, report.Final)
	require.EqualValues(t, override, report.Final.X)
	require.EqualValues(t, override, report.Final.Global)
	require.Empty(t, report.Problems())
}

func TestDisassembleTrapSites(t *testing.T) {
	fixture := protest.BuildFixture("tracetarget")

	report, err := probe.Run(fixture.Path, probe.Options{DisasmLines: 4})
	require.NoError(t, err)

	require.Len(t, report.Traps, 2)
	for _, site := range report.Traps {
		require.Len(t, site.Disasm, 4)
		require.Equal(t, site.PC, site.Disasm[0].Addr)
	}
}
