// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the terminal presentation shared by the umlaut
// dashboard and CLI: the color theme and a markdown renderer for
// anomaly remediation text.
//
// [RenderMarkdown] walks a goldmark AST directly instead of using
// goldmark's HTML renderer interface, because terminal output needs
// accumulate-then-wrap semantics: a paragraph's inline content is
// collected and word-wrapped as a unit when the paragraph closes. Code
// spans and fenced blocks are highlighted with chroma; remediation
// snippets are Python, so that is the default lexer.
package tui
