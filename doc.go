/*
Package audiograph renders a graph of audio units in real time.

Concept

The engine owns a set of live units addressed by node id and a single
render loop that pulls quanta from the output node:

	Source - the origin of signal, oscillator, microphone or file;
	Effect - the manipulator of the signal;
	Sink - the destination of signal, output, analyser or recorder.

Units are created by kind. Every kind is described in kind.Registry by its
role, default values and fields. A field has one of three semantics:

	Parameter - a numeric value read by the unit every quantum;
	Property - a value assigned to the unit between quanta;
	SpecialSetter - a value that needs conversion before it's installed.

Mutations

Routes are only touched by the render loop. Parameter values are atomics
written on the caller goroutine and read by the loop every quantum.
Properties and special values are pushed as mutations and applied by the
loop between quanta, so they are never observed in the middle of a
quantum. Analyser properties are the exception: the analyser guards its
state with a lock and they are assigned before Update returns. Special
values such as audio payloads are decoded before the engine lock is
taken.

Scheduled sources

Oscillators and file players start when they are created, whether the
engine is running or suspended. Suspended time is not replayed: nothing
is rendered while suspended and the source continues from where it was
when rendering resumes.

Asynchronous kinds

Kinds that need a capture device are created Pending. The device is
acquired in the background and the unit becomes live when it's ready.
Connections made while a node is pending are applied at that moment,
and so are params updated while it's pending.
Removing a pending node cancels the acquisition and releases the device
if it's acquired later.

Lifecycle

The engine is created suspended. Toggle resumes and suspends rendering,
Close stops it and releases all units.
*/
package audiograph
