// Command media-optimizer runs the media conversion service: it probes
// the available codec backends (libvips, the pure-Go image path, and
// ffmpeg), converts images to WebP/AVIF and videos to AV1/VP9 in WebM,
// and tracks the byte savings of every artifact it produces.
//
// # Application Lifecycle
//
//  1. Configuration Loading: reads environment variables and validates
//     the media, cache, and database directories
//  2. Database Initialization: opens the SQLite bookkeeping database
//  3. Capability Detection: probes each codec backend with real tiny
//     encodes and caches the resulting capability matrix
//  4. Component Initialization: conversion pipeline, quota gate,
//     external service client, webhook reconciler, and the background
//     scheduler with its worker pool
//  5. HTTP Servers: the API surface on PORT and the Prometheus metrics
//     endpoint on METRICS_PORT
//
// Shutdown on SIGINT/SIGTERM drains the conversion queue, then stops
// both servers gracefully.
package main
