/*
Package workers sizes worker pools for containerized deployments.

Inside a container with cgroup CPU limits, runtime.NumCPU() still
reports the host's core count. Go 1.19+ sets GOMAXPROCS from the cgroup
limit, so pool sizing here goes through GOMAXPROCS(0) and respects
whatever the orchestrator granted the pod.

# Usage

The conversion scheduler sizes its encode pool with ForCPU, since
libvips and ffmpeg encodes saturate a core each:

	poolSize := workers.ForCPU(8) // one worker per CPU, capped at 8

I/O-heavy helpers (baseline stats over NFS, database fan-out) can use
ForIO, which allows two workers per CPU because most of their time is
spent waiting:

	poolSize := workers.ForIO(16)

ForMixed sits between the two at 1.5 workers per CPU, and Count exposes
the multiplier directly:

	poolSize := workers.Count(3.0, 24) // 3 per CPU, max 24

# Operator override

Every function honors the CONVERT_WORKERS environment variable, so a
deployment can pin the encode pool size regardless of CPU limits:

	env:
	- name: CONVERT_WORKERS
	  value: "4"

This is the lever to pull when the node is shared with other encode
workloads or when diagnosing throughput problems.

# Sizing example

A pod limited to 2 CPUs on a 64-core node:

  - GOMAXPROCS is 2 (set by the Go runtime from the cgroup limit)
  - workers.ForCPU(8) returns 2
  - workers.ForIO(16) returns 4
  - runtime.NumCPU() would have claimed 64

Spawning a worker per host core under a 2-CPU limit buys nothing but
context switching and cgroup throttling, which is exactly what encode
latency cannot afford.

All functions are safe for concurrent use.
*/
package workers
