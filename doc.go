/*
Package signalpath implements a real-time audio signal path: a lock-free,
dynamically reconfigurable processing graph between a hardware audio
callback and application code.

Concept

The graph has two halves. On capture, the native callback pushes one block
of interleaved frames into a Pipeline of stages. On playback, the native
callback asks the root mixer Node to render a block, which recursively
pulls from child nodes and playback sources.

Stages come in two capabilities:

    Mutator  - rewrites the live buffer in place, synchronously;
    Observer - receives copies through a private ring, asynchronously.

Both callbacks are hard real-time: nothing on them may block, allocate or
take a lock. Membership changes (add/remove stage, add/remove mixer child
or source) happen from arbitrary application threads through atomic
copy-on-write snapshot swaps, so the audio thread only ever dereferences an
immutable snapshot.

Subpackages

    buffer    - SPSC ring buffer for cross-thread sample handoff
    pipeline  - ordered stage collection with lock-free mutation
    stage     - built-in stages: downmix, gate, limiter, capture
    mixer     - hierarchical additive mixing graph
    source    - queue-backed playback source with cubic resampling
    device    - explicit audio context owning backend and graph
    portaudio - portaudio implementation of the device backend
    wav, mp3  - file loaders and export for sources and captures
    natspub   - observer stage publishing blocks to NATS
*/
package signalpath
